package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type RunnerConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Pipeline *Pipeline

	// Interval between full pipeline runs.
	Interval time.Duration

	// RetryDelay is how long to wait before the single retry of a failed
	// run. Zero disables the retry.
	RetryDelay time.Duration
}

func (cfg *RunnerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Pipeline == nil {
		return errors.New("pipeline is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	return nil
}

// Runner executes the full pipeline on a fixed interval. Runs never
// overlap: a run that outlasts the interval delays the next tick's run.
type Runner struct {
	log *slog.Logger
	cfg *RunnerConfig
}

func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{log: cfg.Logger, cfg: cfg}, nil
}

// Run executes one pipeline run immediately, then one per interval until
// the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("runner: starting", "interval", r.cfg.Interval, "retryDelay", r.cfg.RetryDelay)

	ticker := r.cfg.Clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("runner: context done, stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	err := r.cfg.Pipeline.Run(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	r.log.Error("runner: pipeline run failed", "error", err)

	if r.cfg.RetryDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-r.cfg.Clock.After(r.cfg.RetryDelay):
	}
	if err := r.cfg.Pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		r.log.Error("runner: pipeline retry failed", "error", err)
	}
}
