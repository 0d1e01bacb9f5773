package staging_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laxman2008/elt-pipeline-project/pkg/postgres"
	postgrestesting "github.com/Laxman2008/elt-pipeline-project/pkg/postgres/testing"
	"github.com/Laxman2008/elt-pipeline-project/pkg/staging"
)

func strPtr(s string) *string { return &s }

func intPtr(n int64) *int64 { return &n }

func floatPtr(f float64) *float64 { return &f }

func TestStaging_MigrationsAreIdempotent(t *testing.T) {
	t.Parallel()
	pool := postgrestesting.NewPool(t)
	ctx := t.Context()

	// NewPool already ran the migrations once; a second run must be a no-op.
	require.NoError(t, postgres.RunMigrations(ctx, slog.Default(), pool))

	var n int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = 'raw_input'`).Scan(&n))
	assert.Equal(t, int64(1), n)
}

func TestStaging_SchemaColumns(t *testing.T) {
	t.Parallel()
	pool := postgrestesting.NewPool(t)
	ctx := t.Context()

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = 'raw_input'
		ORDER BY ordinal_position`)
	require.NoError(t, err)
	defer rows.Close()

	type column struct{ Name, Type string }
	var columns []column
	for rows.Next() {
		var c column
		require.NoError(t, rows.Scan(&c.Name, &c.Type))
		columns = append(columns, c)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []column{
		{"id", "text"},
		{"pickup_datetime", "text"},
		{"dropoff_datetime", "text"},
		{"passenger_count", "integer"},
		{"trip_distance", "double precision"},
		{"rate_code", "text"},
		{"store_and_fwd", "text"},
		{"payment_type", "text"},
		{"fare_amount", "double precision"},
	}, columns)
}

func TestStaging_Store_InsertFetchTruncate(t *testing.T) {
	t.Parallel()
	pool := postgrestesting.NewPool(t)
	ctx := t.Context()

	store := staging.NewStore(slog.Default(), pool)

	trips := []staging.RawTrip{
		{
			ID:              strPtr("t1"),
			PickupDatetime:  strPtr("2024-03-01 08:30:00"),
			DropoffDatetime: strPtr("2024-03-01 08:45:00"),
			PassengerCount:  intPtr(2),
			TripDistance:    floatPtr(3.4),
			RateCode:        strPtr("1"),
			StoreAndFwd:     strPtr("N"),
			PaymentType:     strPtr("card"),
			FareAmount:      floatPtr(15.5),
		},
		{
			// Mostly-null row: the intake shape has no constraints.
			PickupDatetime: strPtr("not even a timestamp"),
		},
	}

	n, err := store.InsertTrips(ctx, trips)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	fetched, err := store.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, fetched, 2)

	byID := map[string]bool{}
	for _, trip := range fetched {
		if trip.ID != nil {
			byID[*trip.ID] = true
		}
	}
	assert.True(t, byID["t1"])

	for _, trip := range fetched {
		if trip.ID == nil {
			assert.Nil(t, trip.PassengerCount)
			assert.Nil(t, trip.FareAmount)
			require.NotNil(t, trip.PickupDatetime)
			assert.Equal(t, "not even a timestamp", *trip.PickupDatetime)
		}
	}

	require.NoError(t, store.Truncate(ctx))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStaging_Store_InsertNothing(t *testing.T) {
	t.Parallel()
	pool := postgrestesting.NewPool(t)

	store := staging.NewStore(slog.Default(), pool)
	n, err := store.InsertTrips(t.Context(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
