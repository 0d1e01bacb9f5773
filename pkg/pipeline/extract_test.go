package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trips.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV_MapsColumnsByHeader(t *testing.T) {
	path := writeCSV(t, `id,pickup_datetime,dropoff_datetime,passenger_count,trip_distance,rate_code,store_and_fwd,payment_type,fare_amount
t1,2024-03-01 08:30:00,2024-03-01 08:45:00,2,3.4,1,N,card,15.5
`)

	trips, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, trips, 1)

	trip := trips[0]
	require.NotNil(t, trip.ID)
	assert.Equal(t, "t1", *trip.ID)
	require.NotNil(t, trip.PassengerCount)
	assert.Equal(t, int64(2), *trip.PassengerCount)
	require.NotNil(t, trip.TripDistance)
	assert.Equal(t, 3.4, *trip.TripDistance)
	require.NotNil(t, trip.FareAmount)
	assert.Equal(t, 15.5, *trip.FareAmount)
}

func TestReadCSV_ToleratesMissingAndUnknownColumns(t *testing.T) {
	path := writeCSV(t, `pickup_datetime,vendor,trip_distance
2024-03-01 08:30:00,acme,1.2
`)

	trips, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, trips, 1)

	trip := trips[0]
	assert.Nil(t, trip.ID)
	assert.Nil(t, trip.PaymentType)
	require.NotNil(t, trip.PickupDatetime)
	assert.Equal(t, "2024-03-01 08:30:00", *trip.PickupDatetime)
	require.NotNil(t, trip.TripDistance)
	assert.Equal(t, 1.2, *trip.TripDistance)
}

func TestReadCSV_EmptyAndUnparseableFieldsAreNil(t *testing.T) {
	path := writeCSV(t, `id,passenger_count,trip_distance,fare_amount
t1,,abc,
t2,2.0,0.5,9.75
`)

	trips, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, trips, 2)

	assert.Nil(t, trips[0].PassengerCount)
	assert.Nil(t, trips[0].TripDistance)
	assert.Nil(t, trips[0].FareAmount)

	// Float-formatted integers still parse.
	require.NotNil(t, trips[1].PassengerCount)
	assert.Equal(t, int64(2), *trips[1].PassengerCount)
}

func TestReadCSV_RaggedRows(t *testing.T) {
	path := writeCSV(t, `id,pickup_datetime,fare_amount
t1,2024-03-01 08:30:00
`)

	trips, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Nil(t, trips[0].FareAmount)
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	path := writeCSV(t, "id,pickup_datetime\n")

	trips, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestReadCSV_MissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
