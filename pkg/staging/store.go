// Package staging provides access to the permissive raw_input intake table.
// Fields are nullable and timestamps stay free text; validation happens
// later in the transform stage, never at intake.
package staging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RawTrip is one unvalidated trip record as ingested. Nil means the source
// had no value for the field.
type RawTrip struct {
	ID              *string
	PickupDatetime  *string
	DropoffDatetime *string
	PassengerCount  *int64
	TripDistance    *float64
	RateCode        *string
	StoreAndFwd     *string
	PaymentType     *string
	FareAmount      *float64
}

var columns = []string{
	"id",
	"pickup_datetime",
	"dropoff_datetime",
	"passenger_count",
	"trip_distance",
	"rate_code",
	"store_and_fwd",
	"payment_type",
	"fare_amount",
}

// Store reads and writes raw_input rows.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, log: log}
}

// InsertTrips bulk-loads trips into raw_input using the Postgres COPY
// protocol and returns the number of rows written.
func (s *Store) InsertTrips(ctx context.Context, trips []RawTrip) (int64, error) {
	if len(trips) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(trips))
	for _, t := range trips {
		rows = append(rows, []any{
			t.ID,
			t.PickupDatetime,
			t.DropoffDatetime,
			t.PassengerCount,
			t.TripDistance,
			t.RateCode,
			t.StoreAndFwd,
			t.PaymentType,
			t.FareAmount,
		})
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"raw_input"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows into raw_input: %w", err)
	}

	s.log.Info("inserted rows into raw_input", "count", n)
	return n, nil
}

// FetchAll returns every staged row.
func (s *Store) FetchAll(ctx context.Context) ([]RawTrip, error) {
	query := `SELECT id, pickup_datetime, dropoff_datetime, passenger_count, trip_distance,
		rate_code, store_and_fwd, payment_type, fare_amount FROM raw_input`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw_input: %w", err)
	}
	defer rows.Close()

	var trips []RawTrip
	for rows.Next() {
		var t RawTrip
		if err := rows.Scan(
			&t.ID,
			&t.PickupDatetime,
			&t.DropoffDatetime,
			&t.PassengerCount,
			&t.TripDistance,
			&t.RateCode,
			&t.StoreAndFwd,
			&t.PaymentType,
			&t.FareAmount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan raw_input row: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read raw_input rows: %w", err)
	}

	return trips, nil
}

// Count returns the number of staged rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM raw_input`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count raw_input rows: %w", err)
	}
	return n, nil
}

// Truncate empties the staging table. Loaded data in analytics is untouched.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE raw_input`); err != nil {
		return fmt.Errorf("failed to truncate raw_input: %w", err)
	}
	s.log.Info("staging table cleared")
	return nil
}
