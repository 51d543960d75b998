package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/triage/pkg/config"
)

// overflowLabel replaces label values once the cardinality limit is reached.
const overflowLabel = "other"

// Collector owns the Prometheus metrics of the triage engine. A nil
// *Collector is valid and records nothing, so callers need no guard.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	runMetrics   *RunMetrics
	stageMetrics *StageMetrics
	probeMetrics *ProbeMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered with registry. If registry is
// nil a fresh one is created.
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "triage", Subsystem: "engine"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RunDurationBuckets) == 0 {
		cfg.RunDurationBuckets = append([]float64(nil), config.DefaultRunDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		runMetrics:         NewRunMetrics(cfg, registry),
		stageMetrics:       NewStageMetrics(cfg, registry),
		probeMetrics:       NewProbeMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordRun records a finalized run with its outcome name ("none" when no
// outcome was assigned), wall-clock duration and final score.
func (c *Collector) RecordRun(outcome string, duration time.Duration, score float64) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow("run:" + outcome) {
		outcome = overflowLabel
	}
	c.runMetrics.RecordRun(outcome, duration, score)
}

// RecordRunFailure records a run that aborted with an error.
func (c *Collector) RecordRunFailure(reason string) {
	if !c.enabled() {
		return
	}
	c.runMetrics.failuresTotal.WithLabelValues(reason).Inc()
}

// RecordBoundExceeded records that a run exhausted resource.
func (c *Collector) RecordBoundExceeded(resource string) {
	if !c.enabled() {
		return
	}
	c.runMetrics.boundsExceededTotal.WithLabelValues(resource).Inc()
}

// RecordEmission records a dispatched emission of kind.
func (c *Collector) RecordEmission(kind string) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow("emit:" + kind) {
		kind = overflowLabel
	}
	c.runMetrics.emissionsTotal.WithLabelValues(kind).Inc()
}

// RecordDeferred records a deferred request addressed to actor.
func (c *Collector) RecordDeferred(actor string) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow("defer:" + actor) {
		actor = overflowLabel
	}
	c.runMetrics.deferredTotal.WithLabelValues(actor).Inc()
}

// RecordStage records the evaluation time of one stage.
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.stageMetrics.RecordStage(stage, duration)
}

// RecordRuleHit records a rule whose condition evaluated to true.
func (c *Collector) RecordRuleHit(stage, rule string) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("rule:%s:%s", stage, rule)) {
		rule = overflowLabel
	}
	c.stageMetrics.ruleHitsTotal.WithLabelValues(stage, rule).Inc()
}

// RecordSignalRejected records a rejected write to an existing signal.
func (c *Collector) RecordSignalRejected(stage string) {
	if !c.enabled() {
		return
	}
	c.stageMetrics.signalRejectionsTotal.WithLabelValues(stage).Inc()
}

// RecordReload records a stage set reload attempt. generation is the
// generation active afterwards.
func (c *Collector) RecordReload(ok bool, generation uint64) {
	if !c.enabled() {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	c.stageMetrics.reloadsTotal.WithLabelValues(result).Inc()
	c.stageMetrics.generation.Set(float64(generation))
}

// RecordProbe records one probe execution.
func (c *Collector) RecordProbe(kind, state string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.probeMetrics.RecordProbe(kind, state, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the current metrics to path in the Prometheus text
// format, for node_exporter's textfile collector. One-shot commands use it
// instead of serving /metrics.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// CardinalityLimiter bounds the number of distinct label sets recorded.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	_, exists := cl.current[labelSet]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
