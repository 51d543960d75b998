package probe

import (
	"context"
	"io"
	"sort"
	"time"

	"mercator-hq/triage/pkg/budget"
	"mercator-hq/triage/pkg/facts"
)

// State is the completion state a probe reports.
type State string

const (
	// StateOK means the probe examined everything it was asked to.
	StateOK State = "ok"

	// StatePartial means the probe produced facts from an incomplete or
	// inconsistent structure, or stopped at its allowance.
	StatePartial State = "partial"

	// StateError means the probe produced nothing usable.
	StateError State = "error"
)

// Probe is a bounded, side-effect free parser for one artifact format.
//
// A probe must not read past Request.Allowance: the artifact reader
// enforces the byte ceiling, and probes cap their own scanning, member
// and depth consumption. A probe that stops early because an allowance ran
// out lists the resource in Result.Exhausted.
type Probe interface {
	Run(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a function to the Probe interface.
type Func func(ctx context.Context, req *Request) (*Result, error)

// Run calls f.
func (f Func) Run(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// Request is one probe invocation.
type Request struct {
	// Binding is the probe binding name; facts land in this namespace.
	Binding string

	// Kind selects the implementation in the registry.
	Kind string

	// Config is the opaque binding configuration from the stage.
	Config map[string]interface{}

	// Artifact is the artifact content. Reads are charged as bytes_read.
	Artifact io.ReaderAt

	// Size is the artifact size in bytes.
	Size int64

	// Allowance is what the probe may still consume. Probes treat it only as
	// a limit: a run that stays below it behaves the same under any larger one.
	Allowance budget.Usage
}

// Result is what a probe observed.
type Result struct {
	State State

	// Facts are keyed observations merged into the binding namespace.
	Facts map[string]facts.Value

	// Consumed is what the probe scanned and visited. BytesRead is ignored:
	// reads are charged by the artifact reader.
	Consumed budget.Usage

	// Exhausted lists resources whose allowance stopped the probe early.
	Exhausted []budget.Resource

	// Detail is a short human-readable note, e.g. why a parse was partial.
	Detail string
}

// Keys returns the fact keys, sorted.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.Facts))
	for k := range r.Facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Outcome is a probe invocation together with its result. Err is set when
// the probe is unavailable, failed or panicked; Result.State is then StateError.
type Outcome struct {
	Request  *Request
	Result   *Result
	Err      error
	Duration time.Duration
}

// Failed reports whether the probe produced nothing usable.
func (o *Outcome) Failed() bool {
	return o.Err != nil || o.Result == nil || o.Result.State == StateError
}
