package probe

import (
	"errors"
	"fmt"
)

var (
	// ErrProbeUnavailable indicates no probe is registered for a kind.
	ErrProbeUnavailable = errors.New("probe unavailable")

	// ErrProbeFailed indicates a probe returned an error or panicked.
	ErrProbeFailed = errors.New("probe failed")

	// ErrDuplicateKind indicates a kind registered twice.
	ErrDuplicateKind = errors.New("probe kind already registered")
)

// UnavailableError reports a binding whose kind has no implementation.
type UnavailableError struct {
	Binding string
	Kind    string
}

// Error returns the error message.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("probe %s: no implementation for kind %q", e.Binding, e.Kind)
}

// Unwrap returns ErrProbeUnavailable.
func (e *UnavailableError) Unwrap() error {
	return ErrProbeUnavailable
}

// Error reports a failed probe run.
type Error struct {
	Binding string
	Kind    string
	Cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("probe %s (%s) failed: %v", e.Binding, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{ErrProbeFailed, e.Cause}
}
