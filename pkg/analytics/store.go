// Package analytics writes validated trips and pipeline audit rows to the
// ClickHouse analytics database.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Laxman2008/elt-pipeline-project/pkg/clickhouse"
)

// ProcessedTrip is one validated, normalized trip record. raw_insert_time is
// intentionally absent: the column defaults to now() on insert.
type ProcessedTrip struct {
	ID              string
	PickupDatetime  time.Time
	DropoffDatetime time.Time
	PassengerCount  uint8
	TripDistance    float64
	RateCode        string
	StoreAndFwd     string
	PaymentType     string
	FareAmount      float64
}

// Metric is one pipeline_metrics audit row.
type Metric struct {
	RunID         string
	RunTime       time.Time
	Stage         string
	RowsProcessed uint64
	Notes         string
}

type Store struct {
	conn  clickhouse.Connection
	clock clockwork.Clock
	log   *slog.Logger
}

func NewStore(log *slog.Logger, clock clockwork.Clock, conn clickhouse.Connection) *Store {
	return &Store{conn: conn, clock: clock, log: log}
}

// InsertProcessed batch-inserts trips into analytics.processed_records.
// The column list excludes raw_insert_time so the server-side DEFAULT
// stamps the ingestion time.
func (s *Store) InsertProcessed(ctx context.Context, trips []ProcessedTrip) (int64, error) {
	if len(trips) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO analytics.processed_records (
		id,
		pickup_datetime,
		dropoff_datetime,
		passenger_count,
		trip_distance,
		rate_code,
		store_and_fwd,
		payment_type,
		fare_amount
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare processed_records batch: %w", err)
	}

	for _, t := range trips {
		if err := batch.Append(
			t.ID,
			t.PickupDatetime,
			t.DropoffDatetime,
			t.PassengerCount,
			t.TripDistance,
			t.RateCode,
			t.StoreAndFwd,
			t.PaymentType,
			t.FareAmount,
		); err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("failed to append to processed_records batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send processed_records batch: %w", err)
	}

	s.log.Info("inserted rows into processed_records", "count", len(trips))
	return int64(len(trips)), nil
}

// WriteMetric appends one audit row for a pipeline stage execution. Audit
// rows are never mutated after this. The insert waits for the server ack so
// a run's metrics are readable as soon as the stage returns.
func (s *Store) WriteMetric(ctx context.Context, runID, stage string, rowsProcessed int64, notes string) error {
	err := s.conn.AsyncInsert(ctx,
		`INSERT INTO analytics.pipeline_metrics (run_id, run_time, stage, rows_processed, notes) VALUES (?, ?, ?, ?, ?)`,
		true,
		runID, s.clock.Now().UTC(), stage, uint64(rowsProcessed), notes,
	)
	if err != nil {
		return fmt.Errorf("failed to write pipeline metric: %w", err)
	}
	return nil
}

// CountProcessed returns the total number of fact rows, duplicates included.
func (s *Store) CountProcessed(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM analytics.processed_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count processed_records: %w", err)
	}
	return n, nil
}

// RecentMetrics returns the newest audit rows, most recent first.
func (s *Store) RecentMetrics(ctx context.Context, limit int) ([]Metric, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT run_id, run_time, stage, rows_processed, notes
		FROM analytics.pipeline_metrics
		ORDER BY run_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline_metrics: %w", err)
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.RunID, &m.RunTime, &m.Stage, &m.RowsProcessed, &m.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline_metrics row: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pipeline_metrics rows: %w", err)
	}

	return metrics, nil
}
