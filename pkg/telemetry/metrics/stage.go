package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/triage/pkg/config"
)

// StageMetrics tracks per-stage evaluation and stage set reloads.
type StageMetrics struct {
	stageDuration         *prometheus.HistogramVec
	ruleHitsTotal         *prometheus.CounterVec
	signalRejectionsTotal *prometheus.CounterVec
	reloadsTotal          *prometheus.CounterVec
	generation            prometheus.Gauge
}

// NewStageMetrics creates and registers stage metrics.
func NewStageMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StageMetrics {
	sm := &StageMetrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_duration_seconds",
				Help:      "Duration of a single stage evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
			},
			[]string{"stage"},
		),
		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_hits_total",
				Help:      "Total number of rules whose condition held",
			},
			[]string{"stage", "rule"},
		),
		signalRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "signal_rejections_total",
				Help:      "Total number of rejected writes to existing signals",
			},
			[]string{"stage"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_reloads_total",
				Help:      "Total number of stage set reload attempts",
			},
			[]string{"result"},
		),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stage_set_generation",
			Help:      "Generation of the active stage set",
		}),
	}

	registry.MustRegister(
		sm.stageDuration,
		sm.ruleHitsTotal,
		sm.signalRejectionsTotal,
		sm.reloadsTotal,
		sm.generation,
	)
	return sm
}

// RecordStage records a stage evaluation.
func (sm *StageMetrics) RecordStage(stage string, duration time.Duration) {
	sm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
