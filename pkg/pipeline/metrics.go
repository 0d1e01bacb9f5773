package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "elt_pipeline_build_info",
		Help: "Build information of the ELT pipeline",
	}, []string{"version", "commit", "date"})

	StageRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elt_pipeline_stage_rows_total", Help: "Total rows processed per pipeline stage.",
	}, []string{"stage"})
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "elt_pipeline_stage_duration_seconds",
		Help:    "Duration of each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})
	StageErrs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elt_pipeline_stage_errors_total", Help: "Total pipeline stage failures.",
	}, []string{"stage"})

	RunOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elt_pipeline_run_outcomes_total", Help: "Pipeline run outcomes.",
	}, []string{"result"})
)
