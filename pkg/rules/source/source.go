package source

import (
	"context"

	"mercator-hq/triage/pkg/rules/compiler"
)

// Source loads a compiled stage pipeline and reports when it changes.
type Source interface {
	// Load parses and compiles every stage the source holds.
	Load(ctx context.Context) (*compiler.Pipeline, error)

	// Watch delivers a ReloadEvent each time the stages change. The channel
	// is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan ReloadEvent, error)
}

// ReloadEvent carries a freshly compiled pipeline or the error that
// prevented compiling it. Consumers keep their previous pipeline on error.
type ReloadEvent struct {
	Pipeline *compiler.Pipeline
	Paths    []string // files that triggered the reload, if known
	Err      error
}
