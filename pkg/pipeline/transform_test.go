package pipeline

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laxman2008/elt-pipeline-project/pkg/staging"
)

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	tr, err := NewTransformer(DefaultSettings(), []byte("test-key"))
	require.NoError(t, err)
	return tr
}

func strPtr(s string) *string { return &s }

func intPtr(n int64) *int64 { return &n }

func floatPtr(f float64) *float64 { return &f }

func TestTransform_HashesID(t *testing.T) {
	tr := newTestTransformer(t)

	out := tr.Transform(staging.RawTrip{ID: strPtr("trip-123")})

	mac := hmac.New(sha256.New, []byte("test-key"))
	mac.Write([]byte("trip-123"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, out.ID)

	// Deterministic across calls.
	assert.Equal(t, out.ID, tr.Transform(staging.RawTrip{ID: strPtr("trip-123")}).ID)
}

func TestTransform_DerivesIDWhenMissing(t *testing.T) {
	tr := newTestTransformer(t)

	trip := staging.RawTrip{
		PickupDatetime: strPtr("2024-03-01 08:30:00"),
		TripDistance:   floatPtr(2.5),
	}

	out1 := tr.Transform(trip)
	out2 := tr.Transform(trip)
	assert.NotEmpty(t, out1.ID)
	assert.Equal(t, out1.ID, out2.ID, "derived id must be deterministic")

	// A different pickup time yields a different id.
	trip.PickupDatetime = strPtr("2024-03-01 08:31:00")
	assert.NotEqual(t, out1.ID, tr.Transform(trip).ID)

	// Whitespace-only ids count as missing.
	trip.ID = strPtr("   ")
	assert.Equal(t, tr.Transform(trip).ID, tr.Transform(trip).ID)
}

func TestTransform_DifferentKeysDifferentIDs(t *testing.T) {
	tr1, err := NewTransformer(DefaultSettings(), []byte("key-one"))
	require.NoError(t, err)
	tr2, err := NewTransformer(DefaultSettings(), []byte("key-two"))
	require.NoError(t, err)

	trip := staging.RawTrip{ID: strPtr("trip-123")}
	assert.NotEqual(t, tr1.Transform(trip).ID, tr2.Transform(trip).ID)
}

func TestTransform_ParsesTimestampLayouts(t *testing.T) {
	tr := newTestTransformer(t)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-01 08:30:00", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"2024-03-01T08:30:00Z", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"2024-03-01T08:30:00", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"2024-03-01 08:30", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"03/01/2024 08:30:00", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := tr.Transform(staging.RawTrip{PickupDatetime: strPtr(tt.input)})
			assert.Equal(t, tt.want, out.PickupDatetime)
		})
	}
}

func TestTransform_UnparseableTimestampFallsBack(t *testing.T) {
	tr := newTestTransformer(t)

	out := tr.Transform(staging.RawTrip{
		PickupDatetime:  strPtr("not a timestamp"),
		DropoffDatetime: nil,
	})

	want, ok := parseDatetime(DefaultSettings().Defaults.PickupDatetime)
	require.True(t, ok)
	assert.Equal(t, want, out.PickupDatetime)
	assert.Equal(t, want, out.DropoffDatetime)
}

func TestTransform_FillsDefaults(t *testing.T) {
	settings := DefaultSettings()
	settings.Defaults.PassengerCount = 2
	settings.Defaults.TripDistance = 1.5
	settings.Defaults.RateCode = "5"
	settings.Defaults.PaymentType = "cash"
	settings.Defaults.FareAmount = 7.25
	tr, err := NewTransformer(settings, []byte("test-key"))
	require.NoError(t, err)

	out := tr.Transform(staging.RawTrip{})

	assert.Equal(t, uint8(2), out.PassengerCount)
	assert.Equal(t, 1.5, out.TripDistance)
	assert.Equal(t, "5", out.RateCode)
	assert.Equal(t, "N", out.StoreAndFwd)
	assert.Equal(t, "cash", out.PaymentType)
	assert.Equal(t, 7.25, out.FareAmount)
}

func TestTransform_KeepsPresentValues(t *testing.T) {
	tr := newTestTransformer(t)

	out := tr.Transform(staging.RawTrip{
		PassengerCount: intPtr(3),
		TripDistance:   floatPtr(12.7),
		RateCode:       strPtr("2"),
		StoreAndFwd:    strPtr("Y"),
		PaymentType:    strPtr("credit"),
		FareAmount:     floatPtr(42.5),
	})

	assert.Equal(t, uint8(3), out.PassengerCount)
	assert.Equal(t, 12.7, out.TripDistance)
	assert.Equal(t, "2", out.RateCode)
	assert.Equal(t, "Y", out.StoreAndFwd)
	assert.Equal(t, "credit", out.PaymentType)
	assert.Equal(t, 42.5, out.FareAmount)
}

func TestTransform_ClampsPassengerCount(t *testing.T) {
	tr := newTestTransformer(t)

	assert.Equal(t, uint8(255), tr.Transform(staging.RawTrip{PassengerCount: intPtr(1000)}).PassengerCount)
	assert.Equal(t, uint8(0), tr.Transform(staging.RawTrip{PassengerCount: intPtr(-4)}).PassengerCount)
	assert.Equal(t, uint8(255), tr.Transform(staging.RawTrip{PassengerCount: intPtr(255)}).PassengerCount)
}

func TestNewTransformer_RejectsBadDefaultTimestamps(t *testing.T) {
	settings := DefaultSettings()
	settings.Defaults.PickupDatetime = "garbage"
	_, err := NewTransformer(settings, []byte("test-key"))
	assert.Error(t, err)
}
