package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/triage/pkg/budget"
	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/probe"
	"mercator-hq/triage/pkg/rules/ast"
	"mercator-hq/triage/pkg/rules/compiler"
	"mercator-hq/triage/pkg/telemetry/logging"
	"mercator-hq/triage/pkg/telemetry/tracing"
)

// Tag sets the engine writes into a stage namespace.
const (
	// PartialParseSet collects the kinds of probes that returned a partial result.
	PartialParseSet = "PartialParse"

	// ProbeErrorSet collects the kinds of probes that failed or were unavailable.
	ProbeErrorSet = "ProbeError"

	// BoundsExceededSet collects the resources whose bound the stage exhausted.
	BoundsExceededSet = "BoundsExceeded"

	// DefaultTagSet receives tag actions that name no set.
	DefaultTagSet = "tags"

	// ProbeStateKey is the signal, in a probe binding namespace, holding the
	// probe state ("ok", "partial" or "error").
	ProbeStateKey = "state"
)

// stageRun is the execution of one stage for one artifact.
type stageRun struct {
	e       *Engine
	r       *run
	stage   *compiler.Stage
	tracker *budget.Tracker
	reader  *budget.ReaderAt
	eval    *Evaluator
	phase   facts.Phase
	fired   []string
}

func stageBounds(s *ast.Stage) budget.Bounds {
	return budget.Bounds{
		MaxReadBytes: s.Bounds.MaxReadBytes,
		MaxScanBytes: s.Bounds.MaxScanBytes,
		MaxDepth:     s.Bounds.MaxDepth,
		MaxMembers:   s.Bounds.MaxMembers,
	}
}

// runStage runs the phases of stage exactly once: observation,
// classification, then condition rules. The finalization stage then
// resolves the outcome and evaluates its dispatch rules.
func (e *Engine) runStage(ctx context.Context, r *run, stage *compiler.Stage) {
	start := time.Now()
	ctx = logging.WithStage(ctx, stage.Name)
	ctx, span := e.tracer.Start(ctx, "triage.stage", trace.WithAttributes(
		tracing.AttrStage.String(stage.Name),
		tracing.AttrStageKind.String(string(stage.Kind)),
	))
	defer span.End()

	tracker := budget.NewTracker(stageBounds(stage.Stage))
	sx := &stageRun{
		e:       e,
		r:       r,
		stage:   stage,
		tracker: tracker,
		reader:  budget.NewReaderAt(r.artifact.Content, r.artifact.Size, tracker),
		eval:    NewEvaluator(r.store, r.fctx, stage),
	}
	r.addTraceStep("stage_start", stage.Name, "", fmt.Sprintf("order %d", stage.Order), 0)

	sx.observe(ctx)
	sx.classify(ctx)
	sx.evaluateRules(ctx)
	if stage.IsFinalization() {
		sx.finalize(ctx)
	}
	sx.noteExhaustion(ctx)

	usage := tracker.Usage()
	r.fctx.AddUsage(usage)
	elapsed := time.Since(start)
	r.stages = append(r.stages, StageReport{
		Name:     stage.Name,
		Usage:    usage,
		Exceeded: tracker.Exceeded(),
		Fired:    sx.fired,
		Duration: elapsed,
	})
	r.addTraceStep("stage_end", stage.Name, "", fmt.Sprintf("%d rules fired", len(sx.fired)), elapsed)

	e.metrics.RecordStage(stage.Name, elapsed)
	span.SetAttributes(tracing.AttrBoundExceeded.Bool(tracker.AnyExceeded()))
	e.logger.DebugContext(ctx, "stage finished",
		"fired", len(sx.fired),
		"bytes_read", usage.BytesRead,
		"bytes_scanned", usage.BytesScanned,
		"duration", elapsed,
	)
}

func (sx *stageRun) prov(rule string) facts.Provenance {
	return facts.Provenance{Stage: sx.stage.Name, Rule: rule, Phase: sx.phase}
}

// observe matches the magic signatures, then runs the observation probes
// wave by wave. A wave only starts while no bound of the stage is exhausted.
func (sx *stageRun) observe(ctx context.Context) {
	sx.phase = facts.PhaseObservation
	sx.matchMagic(ctx)

	for i, wave := range sx.stage.Waves {
		if sx.tracker.AnyExceeded() {
			for _, b := range wave {
				sx.r.addTraceStep("probe_skipped", sx.stage.Name, b.Name, "stage bounds exhausted", 0)
			}
			sx.e.logger.DebugContext(ctx, "probe wave skipped", "wave", i, "probes", len(wave))
			continue
		}
		sx.runWave(ctx, i, wave)
	}
}

// matchMagic compares each signature with the artifact header. A signature
// that extends past the end of the artifact does not match; one whose bytes
// could not be read within the bound stays unknown.
func (sx *stageRun) matchMagic(ctx context.Context) {
	for _, m := range sx.stage.Magic {
		if m.End() > sx.r.artifact.Size {
			sx.putSignal(ctx, sx.stage.Name, m.Signal, facts.Bool(false), "<magic>")
			continue
		}

		buf := make([]byte, len(m.Bytes))
		n, err := sx.reader.ReadAt(buf, m.Offset)
		if n < len(buf) {
			sx.r.addTraceStep("magic", sx.stage.Name, m.Signal, "header not readable", 0)
			if err != nil && !errors.Is(err, budget.ErrBoundExceeded) {
				sx.e.logger.WarnContext(ctx, "magic read failed", "signal", m.Signal, "error", err)
			}
			continue
		}

		matched := bytes.Equal(buf, m.Bytes)
		sx.r.addTraceStep("magic", sx.stage.Name, m.Signal, fmt.Sprintf("matched=%t", matched), 0)
		sx.putSignal(ctx, sx.stage.Name, m.Signal, facts.Bool(matched), "<magic>")
	}
	sx.noteExhaustion(ctx)
}

// runWave runs the probes of one wave concurrently, each offered the whole
// remaining stage allowance through its own tracker. Results are committed
// in declared order once the whole wave has finished. A probe is charged
// against what the probes before it left; when its result may have relied
// on allowance they used, it runs again with only that remainder. The
// committed results therefore match a sequential run in declared order,
// and the stage never goes past its ceilings.
func (sx *stageRun) runWave(ctx context.Context, index int, wave []*ast.ProbeBinding) {
	ctx, span := sx.e.tracer.Start(ctx, "triage.probe_wave", trace.WithAttributes(
		tracing.AttrStage.String(sx.stage.Name),
		attribute.Int("triage.probe.wave", index),
	))
	defer span.End()

	allowance := sx.tracker.Allowance()
	reqs := make([]*probe.Request, len(wave))
	children := make([]*budget.Tracker, len(wave))
	for i, b := range wave {
		children[i] = budget.NewTracker(allowance.Bounds())
		reqs[i] = sx.request(b, children[i], allowance)
		sx.r.probed[b.Name] = true
	}

	outcomes := sx.e.scheduler.RunWave(ctx, reqs)
	for i, out := range outcomes {
		child := children[i]
		if remaining := sx.tracker.Allowance(); !fitsWithin(consumedBy(out, child), allowance, remaining) {
			sx.r.addTraceStep("probe_rerun", sx.stage.Name, wave[i].Name, "allowance taken by earlier probes", 0)
			child = budget.NewTracker(remaining.Bounds())
			out = sx.e.scheduler.Run(ctx, sx.request(wave[i], child, remaining))
		}
		sx.merge(ctx, wave[i], out, child)
		span.AddEvent("probe", trace.WithAttributes(
			tracing.AttrProbeBinding.String(wave[i].Name),
			tracing.AttrProbeKind.String(wave[i].Kind),
			tracing.AttrProbeState.String(string(out.Result.State)),
		))
	}
}

// fitsWithin reports whether a probe that consumed used under offered
// would have behaved the same under remaining: every accumulating resource
// is either untouched by earlier probes or used strictly below what is left.
func fitsWithin(used, offered, remaining budget.Usage) bool {
	for _, r := range budget.Resources {
		if r == budget.Depth || remaining.Get(r) >= offered.Get(r) {
			continue
		}
		if used.Get(r) >= remaining.Get(r) {
			return false
		}
	}
	return true
}

// consumedBy is what a probe run used: the bytes read through its tracker
// plus what it reports scanning and visiting.
func consumedBy(out *probe.Outcome, child *budget.Tracker) budget.Usage {
	extra := out.Result.Consumed
	extra.BytesRead = 0
	return child.Usage().Merge(extra)
}

// runProbe runs a single binding on behalf of a 'run' action with the full
// remaining allowance of the stage. A binding runs at most once per run.
func (sx *stageRun) runProbe(ctx context.Context, name string) bool {
	b := sx.stage.GetProbe(name)
	if b == nil || sx.r.probed[name] {
		return false
	}
	sx.r.probed[name] = true

	allowance := sx.tracker.Allowance()
	child := budget.NewTracker(allowance.Bounds())
	out := sx.e.scheduler.Run(ctx, sx.request(b, child, allowance))
	sx.merge(ctx, b, out, child)
	return true
}

func (sx *stageRun) request(b *ast.ProbeBinding, tracker *budget.Tracker, allowance budget.Usage) *probe.Request {
	return &probe.Request{
		Binding:   b.Name,
		Kind:      b.Kind,
		Config:    b.Config,
		Artifact:  budget.NewReaderAt(sx.r.artifact.Content, sx.r.artifact.Size, tracker),
		Size:      sx.r.artifact.Size,
		Allowance: allowance,
	}
}

// merge charges what a probe consumed to the stage and commits its facts
// into the binding namespace. Failures and partial parses become facts of
// the stage namespace.
func (sx *stageRun) merge(ctx context.Context, b *ast.ProbeBinding, out *probe.Outcome, child *budget.Tracker) {
	res := out.Result

	// An overrun is recorded by the tracker itself.
	_ = sx.tracker.ChargeUsage(consumedBy(out, child))
	for _, r := range append(child.Exceeded(), res.Exhausted...) {
		_ = sx.tracker.Exhaust(r)
	}

	rule := "<probe:" + b.Name + ">"
	state := res.State
	sx.putSignal(ctx, b.Name, ProbeStateKey, facts.Label(string(state)), rule)

	switch {
	case out.Failed():
		sx.r.store.AppendTag(sx.stage.Name, ProbeErrorSet, b.Kind, sx.prov(rule))
		sx.r.fctx.NoteProbeError()
		code := DiagProbeError
		if errors.Is(out.Err, probe.ErrProbeUnavailable) {
			code = DiagProbeUnavailable
		}
		sx.r.diagnose(code, sx.stage.Name, b.Name, "%s", res.Detail)
		sx.e.logger.WarnContext(ctx, "probe failed", "probe", b.Name, "kind", b.Kind, "detail", res.Detail)

	default:
		if state == probe.StatePartial {
			sx.r.store.AppendTag(sx.stage.Name, PartialParseSet, b.Kind, sx.prov(rule))
			sx.r.fctx.NotePartialParse()
			sx.r.diagnose(DiagPartialParse, sx.stage.Name, b.Name, "%s", res.Detail)
		}
		for _, key := range res.Keys() {
			_, err := sx.putSignal(ctx, b.Name, key, res.Facts[key], rule)
			if err != nil && !errors.Is(err, facts.ErrDuplicateSignal) {
				sx.r.diagnose(DiagProbeError, sx.stage.Name, b.Name, "%v", err)
			}
		}
	}

	sx.r.addTraceStep("probe", sx.stage.Name, b.Name,
		fmt.Sprintf("%s %s, %d facts", b.Kind, state, len(res.Facts)), out.Duration)
	sx.e.metrics.RecordProbe(b.Kind, string(state), out.Duration)
	sx.noteExhaustion(ctx)
}

// noteExhaustion records every newly exhausted resource as a
// BoundsExceeded member and raises the run-wide bounds_exceeded flag.
func (sx *stageRun) noteExhaustion(ctx context.Context) {
	for _, res := range sx.tracker.Exceeded() {
		if !sx.r.store.AppendTag(sx.stage.Name, BoundsExceededSet, string(res), sx.prov("<budget>")) {
			continue
		}
		sx.r.fctx.MarkBoundsExceeded()
		sx.e.metrics.RecordBoundExceeded(string(res))
		sx.r.diagnose(DiagBoundExceeded, sx.stage.Name, "", "%s bound exhausted", res)
		sx.e.logger.InfoContext(ctx, "stage bound exhausted",
			"resource", res,
			"limit", stageBounds(sx.stage.Stage).Limit(res),
		)
	}
}

// classify maps observations to canonical facts. Mappings are presence
// tests only and writing the same value twice is not a conflict.
func (sx *stageRun) classify(ctx context.Context) {
	sx.phase = facts.PhaseClassification
	for _, c := range sx.stage.Classify {
		present := sx.eval.Present(c.Observed)
		sx.r.addTraceStep("classify", sx.stage.Name, c.Observed, fmt.Sprintf("present=%t", present), 0)
		if !present {
			continue
		}
		for _, action := range c.Actions {
			sx.apply(ctx, "classify:"+c.Observed, action)
		}
	}
}

// evaluateRules evaluates every enabled rule in declared order. Each rule
// whose condition is True fires, and later rules observe its effects.
func (sx *stageRun) evaluateRules(ctx context.Context) {
	sx.phase = facts.PhaseCondition
	if sx.stage.IsFinalization() {
		sx.phase = facts.PhaseFinalization
	}

	for _, rule := range sx.stage.EnabledRules() {
		sx.fire(ctx, rule.Name, rule.Conditions, rule.Actions)
	}
}

func (sx *stageRun) fire(ctx context.Context, name string, cond *ast.ConditionNode, actions []*ast.Action) {
	start := time.Now()
	result := sx.eval.Eval(cond)
	sx.r.addTraceStep("rule_eval", sx.stage.Name, name, result.String(), time.Since(start))
	if result != True {
		return
	}

	sx.fired = append(sx.fired, name)
	sx.e.metrics.RecordRuleHit(sx.stage.Name, name)
	for _, action := range actions {
		sx.apply(ctx, name, action)
	}
}

// finalize applies the fallback outcome when no assignment fired, then
// evaluates the dispatch rules against the resolved outcome.
func (sx *stageRun) finalize(ctx context.Context) {
	sx.phase = facts.PhaseFinalization
	store := sx.r.store

	if _, _, ok := store.Outcome(); !ok {
		o := outcomeFor(sx.stage, sx.stage.Otherwise)
		if err := store.SetOutcome(o, sx.prov("<otherwise>")); err != nil {
			sx.r.diagnose(DiagActionFailed, sx.stage.Name, "<otherwise>", "%v", err)
		}
		sx.r.addTraceStep("outcome", sx.stage.Name, "<otherwise>", "fallback to "+o.Name, 0)
	}

	for _, rule := range sx.stage.Dispatch {
		sx.fire(ctx, rule.Name, rule.Conditions, rule.Actions)
	}
}

func outcomeFor(stage *compiler.Stage, name string) facts.Outcome {
	decl := stage.GetOutcome(name)
	if decl == nil {
		return facts.Outcome{Name: name}
	}
	return facts.Outcome{
		Name:     decl.Name,
		Severity: string(decl.Severity),
		Rank:     decl.Severity.Rank(),
	}
}
