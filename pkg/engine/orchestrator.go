package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/probe"
	"mercator-hq/triage/pkg/rules/compiler"
	"mercator-hq/triage/pkg/rules/source"
	"mercator-hq/triage/pkg/telemetry/logging"
	"mercator-hq/triage/pkg/telemetry/metrics"
	"mercator-hq/triage/pkg/telemetry/tracing"
)

// Engine runs artifacts through a compiled stage pipeline.
//
// An Engine is safe for concurrent use. Runs share nothing mutable: each
// has its own fact store, context and budget trackers, and reads the
// pipeline that was installed when it started.
type Engine struct {
	config    *EngineConfig
	logger    *slog.Logger
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	scheduler *probe.Scheduler

	// mu serializes pipeline installs; readers use current.
	mu      sync.Mutex
	current atomic.Pointer[installed]
}

type installed struct {
	pipeline   *compiler.Pipeline
	generation uint64
}

// New creates an engine. A pipeline must be installed with SetPipeline or
// Load before the first run.
//
// An invalid config (non-positive score ceiling, probe concurrency or
// batch workers, or a nil registry) fails with ErrInvalidConfig. A nil
// config selects DefaultEngineConfig.
//
// Example:
//
//	e, err := engine.New(engine.DefaultEngineConfig().
//	    WithLogger(logger).
//	    WithBatchWorkers(8))
//	if err != nil {
//	    return err
//	}
//	if err := e.Load(ctx, source.NewFileSource("stages", logger)); err != nil {
//	    return err
//	}
func New(config *EngineConfig) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := config.Registry
	if registry == nil {
		return nil, fmt.Errorf("%w: probe registry cannot be nil", ErrInvalidConfig)
	}

	return &Engine{
		config:    config,
		logger:    logger,
		metrics:   config.Metrics,
		tracer:    config.Tracer,
		scheduler: probe.NewScheduler(registry, config.ProbeConcurrency, logger),
	}, nil
}

// SetPipeline installs p for every run started afterwards and returns its
// generation. Runs in flight keep the pipeline they started with.
func (e *Engine) SetPipeline(p *compiler.Pipeline) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var gen uint64 = 1
	if cur := e.current.Load(); cur != nil {
		gen = cur.generation + 1
	}
	e.current.Store(&installed{pipeline: p, generation: gen})
	return gen
}

// Pipeline returns the installed pipeline, or nil.
func (e *Engine) Pipeline() *compiler.Pipeline {
	if cur := e.current.Load(); cur != nil {
		return cur.pipeline
	}
	return nil
}

// Generation returns the generation of the installed pipeline, or 0.
func (e *Engine) Generation() uint64 {
	if cur := e.current.Load(); cur != nil {
		return cur.generation
	}
	return 0
}

// Load compiles the stages of src and installs them.
func (e *Engine) Load(ctx context.Context, src source.Source) error {
	p, err := src.Load(ctx)
	if err != nil {
		e.metrics.RecordReload(false, e.Generation())
		return fmt.Errorf("failed to load stages: %w", err)
	}

	gen := e.SetPipeline(p)
	e.metrics.RecordReload(true, gen)
	e.logger.Info("stages loaded",
		"stages", len(p.Stages),
		"generation", gen,
	)
	return nil
}

// Watch installs every pipeline src reports until ctx is cancelled or the
// source stops. A reload that fails to compile keeps the previous pipeline.
func (e *Engine) Watch(ctx context.Context, src source.Source) error {
	events, err := src.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch stages: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleReload(ev)
		}
	}
}

func (e *Engine) handleReload(ev source.ReloadEvent) {
	if ev.Err != nil {
		e.metrics.RecordReload(false, e.Generation())
		e.logger.Error("stage reload failed, keeping current pipeline",
			"error", ev.Err,
			"paths", ev.Paths,
			"generation", e.Generation(),
		)
		return
	}

	gen := e.SetPipeline(ev.Pipeline)
	e.metrics.RecordReload(true, gen)
	e.logger.Info("stages reloaded",
		"stages", len(ev.Pipeline.Stages),
		"paths", ev.Paths,
		"generation", gen,
	)
}

// Run analyses one artifact. It only returns an error when no pipeline is
// installed, the artifact is invalid, or ctx is cancelled between stages;
// everything else that goes wrong during a run is recorded in the result.
//
// # Stages
//
// Stages run once each, in pipeline order, against a fresh fact store.
// Every stage gets its own budget tracker, so one stage exhausting its
// bounds never starves the next. The pipeline is captured when the run
// starts; a reload during the run does not affect it.
//
// # Failures
//
// Probe errors, partial parses and exhausted bounds become facts
// (ProbeError, PartialParse, BoundsExceeded) and diagnostics. The
// finalization stage sees them through context.probe_errors,
// context.partial_parses and context.bounds_exceeded.
//
// # Determinism
//
// Two runs over the same content, claims and pipeline produce results with
// equal Digest values, whatever the probe scheduling.
//
// Example:
//
//	res, err := e.Run(ctx, engine.BytesArtifact("invoice.pdf", data, map[string]string{
//	    "extension": "pdf",
//	}))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Outcome.Name, res.Score, res.RiskHints)
func (e *Engine) Run(ctx context.Context, artifact *Artifact) (*Result, error) {
	cur := e.current.Load()
	if cur == nil {
		e.metrics.RecordRunFailure("no_pipeline")
		return nil, ErrNoPipeline
	}
	if err := checkArtifact(artifact); err != nil {
		e.metrics.RecordRunFailure("invalid_artifact")
		return nil, err
	}
	if artifact.Content == nil {
		artifact = &Artifact{Name: artifact.Name, Content: bytes.NewReader(nil), Claimed: artifact.Claimed}
	}

	r := newRun(uuid.NewString(), artifact, e.config)
	start := time.Now()

	ctx = logging.WithRunID(ctx, r.id)
	ctx = logging.WithArtifact(ctx, artifact.Name)
	ctx, span := e.tracer.Start(ctx, "triage.run", trace.WithAttributes(
		tracing.AttrRunID.String(r.id),
		tracing.AttrArtifact.String(artifact.Name),
		tracing.AttrArtifactSize.Int64(artifact.Size),
	))
	defer span.End()

	for _, stage := range cur.pipeline.Stages {
		if err := ctx.Err(); err != nil {
			runErr := &RunError{RunID: r.id, Stage: stage.Name, Cause: err}
			e.metrics.RecordRunFailure("cancelled")
			tracing.SetStatus(span, runErr)
			e.logger.WarnContext(ctx, "run cancelled", "stage", stage.Name, "error", err)
			return nil, runErr
		}
		e.runStage(ctx, r, stage)
	}

	result := r.result(cur.generation, time.Since(start))

	e.metrics.RecordRun(result.Outcome.Name, result.Duration, result.Score)
	for _, em := range result.Emissions {
		e.metrics.RecordEmission(em.Kind)
	}
	for _, d := range result.Deferred {
		e.metrics.RecordDeferred(d.Actor)
	}
	span.SetAttributes(
		tracing.AttrOutcome.String(result.Outcome.Name),
		tracing.AttrScore.Float64(result.Score),
		tracing.AttrBoundExceeded.Bool(result.BoundsExceeded),
	)
	tracing.SetStatus(span, nil)

	e.logger.InfoContext(ctx, "run finished",
		"outcome", result.Outcome.Name,
		"score", result.Score,
		"emissions", len(result.Emissions),
		"deferred", len(result.Deferred),
		"bounds_exceeded", result.BoundsExceeded,
		"duration", result.Duration,
	)
	return result, nil
}

// RunBatch analyses artifacts concurrently on at most BatchWorkers
// goroutines. Results are returned in input order. The first failing run
// cancels the rest; its error is returned together with the results that
// completed.
func (e *Engine) RunBatch(ctx context.Context, artifacts []*Artifact) ([]*Result, error) {
	return e.RunBatchFunc(ctx, artifacts, nil)
}

// RunBatchFunc is RunBatch with a callback. fn is called on the worker
// goroutine as soon as the run of artifacts[i] completes, so callers can
// record or release an artifact without waiting for the whole batch. An
// error from fn cancels the batch like a failed run.
//
// Example:
//
//	results, err := e.RunBatchFunc(ctx, artifacts, func(i int, res *engine.Result) error {
//	    _, err := rec.RecordResult(ctx, res, hashes[i], artifacts[i].Size)
//	    return err
//	})
func (e *Engine) RunBatchFunc(ctx context.Context, artifacts []*Artifact, fn func(i int, result *Result) error) ([]*Result, error) {
	results := make([]*Result, len(artifacts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.BatchWorkers)
	for i, artifact := range artifacts {
		g.Go(func() error {
			name := "<nil>"
			if artifact != nil {
				name = artifact.Name
			}
			result, err := e.Run(gctx, artifact)
			if err != nil {
				return fmt.Errorf("artifact %s: %w", name, err)
			}
			results[i] = result
			if fn != nil {
				if err := fn(i, result); err != nil {
					return fmt.Errorf("artifact %s: %w", name, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func checkArtifact(a *Artifact) error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: nil artifact", ErrInvalidArtifact)
	case a.Size < 0:
		return fmt.Errorf("%w: %s has negative size %d", ErrInvalidArtifact, a.Name, a.Size)
	case a.Content == nil && a.Size > 0:
		return fmt.Errorf("%w: %s has no content", ErrInvalidArtifact, a.Name)
	}
	return nil
}

// run is the mutable state of one run. Stages execute sequentially and
// probe results are merged after their wave, so it needs no locking.
type run struct {
	id       string
	artifact *Artifact
	store    *facts.Store
	fctx     *facts.Context
	probed   map[string]bool

	emissions   []Emission
	deferred    []DeferredRequest
	diagnostics []Diagnostic
	stages      []StageReport
	trace       *EvaluationTrace
}

func newRun(id string, artifact *Artifact, config *EngineConfig) *run {
	r := &run{
		id:       id,
		artifact: artifact,
		store:    facts.NewStore(config.ScoreCeiling),
		fctx:     facts.NewContext(artifact.Size, artifact.Claimed),
		probed:   make(map[string]bool),
	}
	if config.EnableTrace {
		r.trace = &EvaluationTrace{}
	}
	return r
}

// addTraceStep records a trace step when tracing is enabled.
func (r *run) addTraceStep(stepType, stage, rule, details string, duration time.Duration) {
	if r.trace == nil {
		return
	}
	r.trace.Steps = append(r.trace.Steps, &TraceStep{
		StepType:  stepType,
		Stage:     stage,
		Rule:      rule,
		Details:   details,
		Timestamp: time.Now(),
		Duration:  duration,
	})
}

func (r *run) diagnose(code DiagnosticCode, stage, rule, format string, args ...interface{}) {
	r.diagnostics = append(r.diagnostics, Diagnostic{
		Code:    code,
		Stage:   stage,
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	})
}

// result seals the run. Deferred requests carry the final outcome.
func (r *run) result(generation uint64, elapsed time.Duration) *Result {
	outcome, _, _ := r.store.Outcome()
	for i := range r.deferred {
		r.deferred[i].Outcome = outcome.Name
		r.deferred[i].Severity = outcome.Severity
	}
	if r.trace != nil {
		r.trace.TotalTime = elapsed
	}

	return &Result{
		RunID:          r.id,
		Artifact:       r.artifact.Name,
		Generation:     generation,
		Facts:          r.store.Snapshot(),
		Outcome:        outcome,
		Score:          r.store.Score(),
		RiskHints:      r.store.RiskHints(),
		Emissions:      nonNil(r.emissions),
		Deferred:       nonNil(r.deferred),
		Diagnostics:    r.diagnostics,
		Stages:         r.stages,
		Usage:          r.fctx.Usage(),
		BoundsExceeded: r.fctx.BoundsExceeded(),
		Duration:       elapsed,
		Trace:          r.trace,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
