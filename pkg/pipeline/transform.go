package pipeline

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Laxman2008/elt-pipeline-project/pkg/analytics"
	"github.com/Laxman2008/elt-pipeline-project/pkg/staging"
)

// Timestamp layouts accepted from the staging table, tried in order.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 03:04:05 PM",
}

// Transformer turns permissive staged rows into strict analytics rows:
// defaults for missing fields, HMAC-hashed ids, parsed timestamps and
// coerced numerics. It holds no mutable state and is safe for reuse.
type Transformer struct {
	defaults       Defaults
	hmacKey        []byte
	defaultPickup  time.Time
	defaultDropoff time.Time
}

func NewTransformer(settings *Settings, hmacKey []byte) (*Transformer, error) {
	defaultPickup, ok := parseDatetime(settings.Defaults.PickupDatetime)
	if !ok {
		return nil, fmt.Errorf("invalid default pickup_datetime %q", settings.Defaults.PickupDatetime)
	}
	defaultDropoff, ok := parseDatetime(settings.Defaults.DropoffDatetime)
	if !ok {
		return nil, fmt.Errorf("invalid default dropoff_datetime %q", settings.Defaults.DropoffDatetime)
	}

	return &Transformer{
		defaults:       settings.Defaults,
		hmacKey:        hmacKey,
		defaultPickup:  defaultPickup,
		defaultDropoff: defaultDropoff,
	}, nil
}

// Transform converts one staged row. It never fails: every malformed field
// falls back to its configured default, keeping the load stage total.
func (t *Transformer) Transform(raw staging.RawTrip) analytics.ProcessedTrip {
	distance := coalesceFloat(raw.TripDistance, t.defaults.TripDistance)

	return analytics.ProcessedTrip{
		ID:              t.recordID(raw, distance),
		PickupDatetime:  t.timestamp(raw.PickupDatetime, t.defaultPickup),
		DropoffDatetime: t.timestamp(raw.DropoffDatetime, t.defaultDropoff),
		PassengerCount:  t.passengerCount(raw.PassengerCount),
		TripDistance:    distance,
		RateCode:        coalesceString(raw.RateCode, t.defaults.RateCode),
		StoreAndFwd:     coalesceString(raw.StoreAndFwd, t.defaults.StoreAndFwd),
		PaymentType:     coalesceString(raw.PaymentType, t.defaults.PaymentType),
		FareAmount:      coalesceFloat(raw.FareAmount, t.defaults.FareAmount),
	}
}

// recordID returns the HMAC-SHA256 hex digest of the raw id. Rows without
// an id get a deterministic one derived from pickup time and distance, so
// re-running the transform over the same staging data yields the same ids.
func (t *Transformer) recordID(raw staging.RawTrip, distance float64) string {
	if raw.ID != nil && strings.TrimSpace(*raw.ID) != "" {
		return t.hash(strings.TrimSpace(*raw.ID))
	}
	pickup := ""
	if raw.PickupDatetime != nil {
		pickup = strings.TrimSpace(*raw.PickupDatetime)
	}
	return t.hash(fmt.Sprintf("%s|%s", pickup, strconv.FormatFloat(distance, 'f', -1, 64)))
}

func (t *Transformer) hash(value string) string {
	mac := hmac.New(sha256.New, t.hmacKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func (t *Transformer) timestamp(raw *string, fallback time.Time) time.Time {
	if raw == nil {
		return fallback
	}
	if ts, ok := parseDatetime(strings.TrimSpace(*raw)); ok {
		return ts
	}
	return fallback
}

func (t *Transformer) passengerCount(raw *int64) uint8 {
	n := t.defaults.PassengerCount
	if raw != nil {
		n = *raw
	}
	// UInt8 column: clamp out-of-range counts instead of overflowing.
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

func parseDatetime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func coalesceString(raw *string, fallback string) string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return fallback
	}
	return strings.TrimSpace(*raw)
}

func coalesceFloat(raw *float64, fallback float64) float64 {
	if raw == nil {
		return fallback
	}
	return *raw
}
