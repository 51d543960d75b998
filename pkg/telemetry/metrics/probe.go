package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/triage/pkg/config"
)

// ProbeMetrics tracks probe executions by kind and resulting state.
type ProbeMetrics struct {
	runsTotal *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewProbeMetrics creates and registers probe metrics.
func NewProbeMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProbeMetrics {
	pm := &ProbeMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "probe_runs_total",
				Help:      "Total number of probe executions",
			},
			[]string{"kind", "state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "probe_duration_seconds",
				Help:      "Duration of probe executions in seconds",
				Buckets:   cfg.RunDurationBuckets,
			},
			[]string{"kind"},
		),
	}
	registry.MustRegister(pm.runsTotal, pm.duration)
	return pm
}

// RecordProbe records one execution.
func (pm *ProbeMetrics) RecordProbe(kind, state string, duration time.Duration) {
	pm.runsTotal.WithLabelValues(kind, state).Inc()
	pm.duration.WithLabelValues(kind).Observe(duration.Seconds())
}
