package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/triage/pkg/config"
)

// RunMetrics tracks whole-run results.
//
// Metrics:
//   - triage_engine_runs_total: finalized runs by outcome
//   - triage_engine_run_duration_seconds: run duration by outcome
//   - triage_engine_run_score: distribution of final scores
//   - triage_engine_run_failures_total: aborted runs by reason
//   - triage_engine_bounds_exceeded_total: exhausted resources
//   - triage_engine_emissions_total: emissions by kind
//   - triage_engine_deferred_total: deferred requests by actor
type RunMetrics struct {
	runsTotal           *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
	runScore            prometheus.Histogram
	failuresTotal       *prometheus.CounterVec
	boundsExceededTotal *prometheus.CounterVec
	emissionsTotal      *prometheus.CounterVec
	deferredTotal       *prometheus.CounterVec
}

// NewRunMetrics creates and registers run metrics.
func NewRunMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RunMetrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	rm := &RunMetrics{
		runsTotal: counter("runs_total", "Total number of finalized runs", "outcome"),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of a run across all stages in seconds",
				Buckets:   cfg.RunDurationBuckets,
			},
			[]string{"outcome"},
		),
		runScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "run_score",
			Help:      "Final accumulated score of finalized runs",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		failuresTotal:       counter("run_failures_total", "Total number of runs aborted with an error", "reason"),
		boundsExceededTotal: counter("bounds_exceeded_total", "Total number of resource exhaustions", "resource"),
		emissionsTotal:      counter("emissions_total", "Total number of dispatched emissions", "kind"),
		deferredTotal:       counter("deferred_total", "Total number of deferred requests", "actor"),
	}

	registry.MustRegister(
		rm.runsTotal,
		rm.runDuration,
		rm.runScore,
		rm.failuresTotal,
		rm.boundsExceededTotal,
		rm.emissionsTotal,
		rm.deferredTotal,
	)
	return rm
}

// RecordRun records a finalized run.
func (rm *RunMetrics) RecordRun(outcome string, duration time.Duration, score float64) {
	rm.runsTotal.WithLabelValues(outcome).Inc()
	rm.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	rm.runScore.Observe(score)
}
