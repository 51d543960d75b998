package engine

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNoPipeline indicates no stage pipeline has been installed.
	ErrNoPipeline = errors.New("no stage pipeline loaded")

	// ErrContextCancelled indicates the run was cancelled between stages.
	ErrContextCancelled = errors.New("run context cancelled")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrInvalidArtifact indicates an artifact without content or with a
	// negative size.
	ErrInvalidArtifact = errors.New("invalid artifact")
)

// RunError reports a run that stopped before finalization. Only
// cancellation stops a run; every other condition is recorded as data.
type RunError struct {
	RunID string
	Stage string
	Cause error
}

// Error returns the error message.
func (e *RunError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("run %s: %v", e.RunID, e.Cause)
	}
	return fmt.Sprintf("run %s stopped before stage %s: %v", e.RunID, e.Stage, e.Cause)
}

// Unwrap returns ErrContextCancelled and the underlying cause.
func (e *RunError) Unwrap() []error {
	return []error{ErrContextCancelled, e.Cause}
}

// ActionError indicates an action that could not be applied. It is never
// returned from Run; it ends up in a Diagnostic.
type ActionError struct {
	Stage      string
	Rule       string
	ActionType string
	Cause      error
}

// Error returns the error message.
func (e *ActionError) Error() string {
	return fmt.Sprintf("stage %s rule %s: action %s failed: %v", e.Stage, e.Rule, e.ActionType, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ActionError) Unwrap() error {
	return e.Cause
}
