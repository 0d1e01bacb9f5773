// Package pipeline implements the trip-record ELT: CSV extraction into the
// Postgres staging table, transform/validation, and the load into the
// ClickHouse analytics store. Every executed stage appends one audit row to
// analytics.pipeline_metrics under the run's id.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Laxman2008/elt-pipeline-project/pkg/analytics"
	"github.com/Laxman2008/elt-pipeline-project/pkg/staging"
)

// Stage names recorded in pipeline_metrics.
const (
	StageIngest    = "ingest"
	StageTransform = "transform"
)

// StagingStore is the staging-table surface the pipeline needs.
type StagingStore interface {
	InsertTrips(ctx context.Context, trips []staging.RawTrip) (int64, error)
	FetchAll(ctx context.Context) ([]staging.RawTrip, error)
	Truncate(ctx context.Context) error
}

// AnalyticsStore is the analytics-store surface the pipeline needs.
type AnalyticsStore interface {
	InsertProcessed(ctx context.Context, trips []analytics.ProcessedTrip) (int64, error)
	WriteMetric(ctx context.Context, runID, stage string, rowsProcessed int64, notes string) error
}

type Config struct {
	Logger      *slog.Logger
	Clock       clockwork.Clock
	Staging     StagingStore
	Analytics   AnalyticsStore
	Transformer *Transformer

	// InputCSV is the path of the trip-record CSV consumed by the ingest
	// stage. A missing file is a clean zero-row ingest, not an error.
	InputCSV string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Staging == nil {
		return errors.New("staging store is required")
	}
	if cfg.Analytics == nil {
		return errors.New("analytics store is required")
	}
	if cfg.Transformer == nil {
		return errors.New("transformer is required")
	}
	if cfg.InputCSV == "" {
		return errors.New("input csv path is required")
	}
	return nil
}

type Pipeline struct {
	log *slog.Logger
	cfg *Config
}

func New(cfg *Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{log: cfg.Logger, cfg: cfg}, nil
}

// NewRunID returns a fresh run identifier grouping the stage audit rows of
// one pipeline run.
func NewRunID() string {
	return uuid.NewString()
}

// Ingest reads the input CSV into the staging table and audits the stage.
func (p *Pipeline) Ingest(ctx context.Context, runID string) (int64, error) {
	start := p.cfg.Clock.Now()

	trips, err := ReadCSV(p.cfg.InputCSV)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.log.Warn("input csv not found, ingesting nothing", "path", p.cfg.InputCSV)
			trips = nil
		} else {
			StageErrs.WithLabelValues(StageIngest).Inc()
			return 0, fmt.Errorf("ingest failed: %w", err)
		}
	}

	n, err := p.cfg.Staging.InsertTrips(ctx, trips)
	if err != nil {
		StageErrs.WithLabelValues(StageIngest).Inc()
		return 0, fmt.Errorf("ingest failed: %w", err)
	}

	if err := p.cfg.Analytics.WriteMetric(ctx, runID, StageIngest, n, "CSV -> Postgres"); err != nil {
		return n, err
	}

	StageRows.WithLabelValues(StageIngest).Add(float64(n))
	StageDuration.WithLabelValues(StageIngest).Observe(p.cfg.Clock.Since(start).Seconds())
	p.log.Info("ingest stage completed", "run_id", runID, "rows", n)
	return n, nil
}

// TransformLoad validates and normalizes every staged row and loads the
// result into processed_records. An empty staging table skips the load but
// still audits a zero-row transform stage.
func (p *Pipeline) TransformLoad(ctx context.Context, runID string) (int64, error) {
	start := p.cfg.Clock.Now()

	raw, err := p.cfg.Staging.FetchAll(ctx)
	if err != nil {
		StageErrs.WithLabelValues(StageTransform).Inc()
		return 0, fmt.Errorf("transform failed: %w", err)
	}

	if len(raw) == 0 {
		p.log.Info("no data in staging, skipping transform", "run_id", runID)
		if err := p.cfg.Analytics.WriteMetric(ctx, runID, StageTransform, 0, "no rows"); err != nil {
			return 0, err
		}
		return 0, nil
	}

	processed := make([]analytics.ProcessedTrip, 0, len(raw))
	for _, trip := range raw {
		processed = append(processed, p.cfg.Transformer.Transform(trip))
	}

	n, err := p.cfg.Analytics.InsertProcessed(ctx, processed)
	if err != nil {
		StageErrs.WithLabelValues(StageTransform).Inc()
		return 0, fmt.Errorf("load failed: %w", err)
	}

	if err := p.cfg.Analytics.WriteMetric(ctx, runID, StageTransform, n, "Postgres -> ClickHouse"); err != nil {
		return n, err
	}

	StageRows.WithLabelValues(StageTransform).Add(float64(n))
	StageDuration.WithLabelValues(StageTransform).Observe(p.cfg.Clock.Since(start).Seconds())
	p.log.Info("transform stage completed", "run_id", runID, "rows", n)
	return n, nil
}

// Run executes ingest then transform under a single run id.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := NewRunID()
	p.log.Info("pipeline run starting", "run_id", runID)

	if _, err := p.Ingest(ctx, runID); err != nil {
		RunOutcomes.WithLabelValues("error").Inc()
		return err
	}
	if _, err := p.TransformLoad(ctx, runID); err != nil {
		RunOutcomes.WithLabelValues("error").Inc()
		return err
	}

	RunOutcomes.WithLabelValues("ok").Inc()
	p.log.Info("pipeline run completed", "run_id", runID)
	return nil
}

// Clear truncates the staging table. Loaded analytics data is untouched.
func (p *Pipeline) Clear(ctx context.Context) error {
	return p.cfg.Staging.Truncate(ctx)
}
