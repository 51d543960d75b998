package engine

import (
	"fmt"
	"log/slog"
	"math"

	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/probe"
	"mercator-hq/triage/pkg/probe/builtin"
	"mercator-hq/triage/pkg/telemetry/metrics"
	"mercator-hq/triage/pkg/telemetry/tracing"
)

// EngineConfig contains configuration for the triage engine.
type EngineConfig struct {
	// ScoreCeiling is the upper clamp of the accumulated score.
	// Default: 1.0.
	ScoreCeiling float64

	// ProbeConcurrency is the number of probes of one wave that may run at
	// the same time. It never changes results, only wall-clock time.
	// Default: 4.
	ProbeConcurrency int

	// BatchWorkers is the number of artifacts RunBatch analyses at once.
	// Default: 4.
	BatchWorkers int

	// EnableTrace records every phase, rule and action in Result.Trace.
	// Default: false.
	EnableTrace bool

	// Registry resolves probe kinds. Default: the builtin probes.
	Registry *probe.Registry

	// Logger receives engine logs. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records run, stage and probe metrics. Nil disables metrics.
	Metrics *metrics.Collector

	// Tracer creates spans per run, stage and probe wave. Nil disables tracing.
	Tracer *tracing.Tracer
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		ScoreCeiling:     facts.DefaultScoreCeiling,
		ProbeConcurrency: config.DefaultProbeConcurrency,
		BatchWorkers:     config.DefaultBatchWorkers,
		EnableTrace:      false,
		Registry:         builtin.NewRegistry(),
	}
}

// FromConfig builds an engine configuration from the engine section of a
// loaded configuration file.
func FromConfig(cfg *config.EngineConfig) *EngineConfig {
	c := DefaultEngineConfig()
	if cfg == nil {
		return c
	}
	if cfg.ScoreCeiling > 0 {
		c.ScoreCeiling = cfg.ScoreCeiling
	}
	if cfg.ProbeConcurrency > 0 {
		c.ProbeConcurrency = cfg.ProbeConcurrency
	}
	if cfg.BatchWorkers > 0 {
		c.BatchWorkers = cfg.BatchWorkers
	}
	c.EnableTrace = cfg.Trace
	return c
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.ScoreCeiling <= 0 || math.IsNaN(c.ScoreCeiling) || math.IsInf(c.ScoreCeiling, 0) {
		return fmt.Errorf("%w: score ceiling must be a positive finite number, got %v", ErrInvalidConfig, c.ScoreCeiling)
	}
	if c.ProbeConcurrency <= 0 {
		return fmt.Errorf("%w: probe concurrency must be positive", ErrInvalidConfig)
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("%w: batch workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithScoreCeiling sets the score ceiling.
func (c *EngineConfig) WithScoreCeiling(ceiling float64) *EngineConfig {
	c.ScoreCeiling = ceiling
	return c
}

// WithProbeConcurrency sets the per-wave probe concurrency.
func (c *EngineConfig) WithProbeConcurrency(n int) *EngineConfig {
	c.ProbeConcurrency = n
	return c
}

// WithBatchWorkers sets the number of concurrent runs in RunBatch.
func (c *EngineConfig) WithBatchWorkers(n int) *EngineConfig {
	c.BatchWorkers = n
	return c
}

// WithTrace enables or disables evaluation tracing.
func (c *EngineConfig) WithTrace(enabled bool) *EngineConfig {
	c.EnableTrace = enabled
	return c
}

// WithRegistry sets the probe registry.
func (c *EngineConfig) WithRegistry(r *probe.Registry) *EngineConfig {
	c.Registry = r
	return c
}

// WithLogger sets the logger.
func (c *EngineConfig) WithLogger(logger *slog.Logger) *EngineConfig {
	c.Logger = logger
	return c
}

// WithMetrics sets the metrics collector.
func (c *EngineConfig) WithMetrics(m *metrics.Collector) *EngineConfig {
	c.Metrics = m
	return c
}

// WithTracer sets the tracer.
func (c *EngineConfig) WithTracer(t *tracing.Tracer) *EngineConfig {
	c.Tracer = t
	return c
}
