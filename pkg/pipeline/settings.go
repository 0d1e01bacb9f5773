package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultHMACKeyEnvVar = "PII_HMAC_KEY"

	// Matches the historical behavior: runs without a key still produce
	// deterministic ids, but they are not private. The caller logs a
	// warning when this key is in use.
	insecureHMACKey = "default-insecure-key"
)

// Defaults holds the per-column fallback values applied during transform
// when a staged field is absent or unparseable.
type Defaults struct {
	PickupDatetime  string  `yaml:"pickup_datetime"`
	DropoffDatetime string  `yaml:"dropoff_datetime"`
	PassengerCount  int64   `yaml:"passenger_count"`
	TripDistance    float64 `yaml:"trip_distance"`
	RateCode        string  `yaml:"rate_code"`
	StoreAndFwd     string  `yaml:"store_and_fwd"`
	PaymentType     string  `yaml:"payment_type"`
	FareAmount      float64 `yaml:"fare_amount"`
}

// Anonymization configures the PII hashing applied to record ids.
type Anonymization struct {
	// HMACKeyEnv names the environment variable holding the HMAC key.
	HMACKeyEnv string `yaml:"hmac_key_env"`
}

// Settings is the pipeline settings file (config.yml).
type Settings struct {
	Defaults      Defaults      `yaml:"defaults"`
	Anonymization Anonymization `yaml:"anonymization"`
}

// DefaultSettings returns the settings used when no config file is present.
func DefaultSettings() *Settings {
	return &Settings{
		Defaults: Defaults{
			PickupDatetime:  "1970-01-01 00:00:00",
			DropoffDatetime: "1970-01-01 00:00:00",
			PassengerCount:  1,
			TripDistance:    0,
			RateCode:        "1",
			StoreAndFwd:     "N",
			PaymentType:     "unknown",
			FareAmount:      0,
		},
		Anonymization: Anonymization{
			HMACKeyEnv: defaultHMACKeyEnvVar,
		},
	}
}

// LoadSettings reads settings from a YAML file. A missing file yields the
// built-in defaults; a malformed file is an error.
func LoadSettings(path string) (*Settings, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(content, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	if settings.Anonymization.HMACKeyEnv == "" {
		settings.Anonymization.HMACKeyEnv = defaultHMACKeyEnvVar
	}

	return settings, nil
}

// HMACKey resolves the anonymization key from the configured environment
// variable. The second return reports whether a real key was found; false
// means the insecure fallback is in use.
func (s *Settings) HMACKey() ([]byte, bool) {
	if key, ok := os.LookupEnv(s.Anonymization.HMACKeyEnv); ok && key != "" {
		return []byte(key), true
	}
	return []byte(insecureHMACKey), false
}
