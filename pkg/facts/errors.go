package facts

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store writes.
var (
	// ErrDuplicateSignal indicates a second write to a write-once signal.
	ErrDuplicateSignal = errors.New("duplicate signal")

	// ErrNegativeScore indicates an attempt to lower the score.
	ErrNegativeScore = errors.New("negative score adjustment")

	// ErrOutcomeNotPermitted indicates an outcome write outside finalization.
	ErrOutcomeNotPermitted = errors.New("outcome assignment not permitted outside finalization")

	// ErrInvalidValue indicates a missing, non-finite or unsupported value.
	ErrInvalidValue = errors.New("invalid fact value")
)

// DuplicateSignalError reports a rejected signal write. The store is left
// unchanged; Existing is the committed fact.
type DuplicateSignalError struct {
	Namespace string
	Key       string
	Existing  Fact
	Attempted Value
	By        Provenance
}

// Error returns the error message.
func (e *DuplicateSignalError) Error() string {
	return fmt.Sprintf("signal %s.%s already set to %s by %s; write of %s by %s rejected",
		e.Namespace, e.Key, e.Existing.Value, e.Existing.Provenance, e.Attempted, e.By)
}

// Unwrap returns ErrDuplicateSignal.
func (e *DuplicateSignalError) Unwrap() error {
	return ErrDuplicateSignal
}
