package engine

import (
	"bytes"
	"io"
	"time"

	"mercator-hq/triage/pkg/budget"
	"mercator-hq/triage/pkg/facts"
)

// Artifact is the input of one run. The engine only reads Content through
// a bounded reader; it never writes or executes it.
type Artifact struct {
	// Name identifies the artifact in logs and results (e.g. a file path).
	Name string

	// Content is the artifact bytes.
	Content io.ReaderAt

	// Size is the artifact size in bytes.
	Size int64

	// Claimed is metadata asserted by whoever submitted the artifact, such
	// as "extension" or "mime". It is available to rules as context.claimed.<key>.
	Claimed map[string]string
}

// BytesArtifact wraps an in-memory artifact.
func BytesArtifact(name string, data []byte, claimed map[string]string) *Artifact {
	return &Artifact{
		Name:    name,
		Content: bytes.NewReader(data),
		Size:    int64(len(data)),
		Claimed: claimed,
	}
}

// Result is the finalized record of one run.
type Result struct {
	// RunID uniquely identifies the run. It is not part of the digest.
	RunID string `json:"run_id"`

	// Artifact is the artifact name.
	Artifact string `json:"artifact"`

	// Generation is the pipeline generation the run was evaluated against.
	Generation uint64 `json:"generation"`

	// Facts is the deterministic snapshot of the fact store.
	Facts []facts.Fact `json:"facts"`

	// Outcome is the resolved verdict. Every completed run has one.
	Outcome facts.Outcome `json:"outcome"`

	// Score is the final clamped score.
	Score float64 `json:"score"`

	// RiskHints are the recorded risk hints, sorted.
	RiskHints []string `json:"risk_hints"`

	// Emissions is the terminal emission batch, in firing order.
	Emissions []Emission `json:"emissions"`

	// Deferred is the terminal deferred-action batch, in firing order.
	Deferred []DeferredRequest `json:"deferred"`

	// Diagnostics lists rejected writes, probe failures and exhausted bounds.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Stages reports consumption per stage, in execution order.
	Stages []StageReport `json:"stages"`

	// Usage is the cumulative consumption of the run.
	Usage budget.Usage `json:"usage"`

	// BoundsExceeded is set when any stage exhausted a bound.
	BoundsExceeded bool `json:"bounds_exceeded"`

	// Duration is the wall-clock run time. It is not part of the digest.
	Duration time.Duration `json:"duration"`

	// Trace contains the evaluation trace (if enabled).
	Trace *EvaluationTrace `json:"trace,omitempty"`
}

// Emission is an event handed to the downstream mediator.
type Emission struct {
	Kind  string        `json:"kind"`
	Stage string        `json:"stage"`
	Rule  string        `json:"rule"`
	Facts []EmittedFact `json:"facts,omitempty"`
}

// EmittedFact is one field an emission carries, resolved at dispatch time.
// Scalar fields set Value, set-typed fields set Members. An unknown field
// has neither.
type EmittedFact struct {
	Field   string       `json:"field"`
	Value   *facts.Value `json:"value,omitempty"`
	Members []string     `json:"members,omitempty"`
}

// Known reports whether the field had a value when the emission fired.
func (f EmittedFact) Known() bool {
	return f.Value != nil || f.Members != nil
}

// DeferredRequest asks an external actor to perform an action. The engine
// only records requests; it never executes them.
type DeferredRequest struct {
	Actor    string `json:"actor"`
	Action   string `json:"action"`
	Stage    string `json:"stage"`
	Rule     string `json:"rule"`
	Outcome  string `json:"outcome"`
	Severity string `json:"severity"`
}

// Target returns "Actor::Action".
func (d DeferredRequest) Target() string {
	return d.Actor + "::" + d.Action
}

// DiagnosticCode classifies a diagnostic.
type DiagnosticCode string

const (
	DiagDuplicateSignal  DiagnosticCode = "duplicate_signal"
	DiagProbeUnavailable DiagnosticCode = "probe_unavailable"
	DiagProbeError       DiagnosticCode = "probe_error"
	DiagPartialParse     DiagnosticCode = "partial_parse"
	DiagBoundExceeded    DiagnosticCode = "bound_exceeded"
	DiagActionFailed     DiagnosticCode = "action_failed"
)

// Diagnostic is an operator-facing note about something that did not go
// as declared during a run.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	Stage   string         `json:"stage"`
	Rule    string         `json:"rule,omitempty"`
	Message string         `json:"message"`
}

// StageReport summarizes one executed stage.
type StageReport struct {
	Name     string            `json:"name"`
	Usage    budget.Usage      `json:"usage"`
	Exceeded []budget.Resource `json:"exceeded,omitempty"`
	Fired    []string          `json:"fired,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// EvaluationTrace records detailed steps of a run for debugging.
type EvaluationTrace struct {
	// Steps contains individual trace steps.
	Steps []*TraceStep `json:"steps"`

	// TotalTime is the total run time.
	TotalTime time.Duration `json:"total_time"`
}

// TraceStep represents a single step in the evaluation trace.
type TraceStep struct {
	// StepType identifies the step ("stage_start", "magic", "probe",
	// "classify", "rule_eval", "action_exec", "outcome", "stage_end").
	StepType string `json:"step_type"`

	// Stage is the stage being executed.
	Stage string `json:"stage"`

	// Rule is the rule, classifier or probe binding involved.
	Rule string `json:"rule,omitempty"`

	// Details contains step-specific details.
	Details string `json:"details,omitempty"`

	// Timestamp is when this step occurred.
	Timestamp time.Time `json:"timestamp"`

	// Duration is how long this step took.
	Duration time.Duration `json:"duration,omitempty"`
}

// ActionResult represents the result of applying a single action.
type ActionResult struct {
	// ActionType is the type of action applied.
	ActionType string

	// Changed reports whether the action added anything to the record.
	Changed bool

	// Error contains the reason the action was rejected, if it was.
	Error error
}
