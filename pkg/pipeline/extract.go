package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Laxman2008/elt-pipeline-project/pkg/staging"
)

// ReadCSV parses a trip-record CSV into staged rows. The header row drives
// column mapping: unknown columns are ignored, missing columns stay nil.
// Intake is permissive; unparseable numerics become nil rather than
// failing the row.
func ReadCSV(path string) ([]staging.RawTrip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var trips []staging.RawTrip
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}

		field := func(name string) *string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return nil
			}
			v := strings.TrimSpace(record[i])
			if v == "" {
				return nil
			}
			return &v
		}

		trips = append(trips, staging.RawTrip{
			ID:              field("id"),
			PickupDatetime:  field("pickup_datetime"),
			DropoffDatetime: field("dropoff_datetime"),
			PassengerCount:  intField(field("passenger_count")),
			TripDistance:    floatField(field("trip_distance")),
			RateCode:        field("rate_code"),
			StoreAndFwd:     field("store_and_fwd"),
			PaymentType:     field("payment_type"),
			FareAmount:      floatField(field("fare_amount")),
		})
	}

	return trips, nil
}

func intField(raw *string) *int64 {
	if raw == nil {
		return nil
	}
	// Some sources export integer columns as floats ("2.0").
	if n, err := strconv.ParseInt(*raw, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(*raw, 64); err == nil {
		n := int64(f)
		return &n
	}
	return nil
}

func floatField(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*raw, 64)
	if err != nil {
		return nil
	}
	return &f
}
