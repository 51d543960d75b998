// Package source provides stage sources for the triage engine.
//
// A source loads and compiles the stage pipeline and reports changes.
//
// # File Source
//
// The file source loads every .yaml/.yml file in a directory:
//
//	src := source.NewFileSource("stages/", logger)
//	pipeline, err := src.Load(ctx)
//
// # Hot-Reload
//
// File changes are picked up with fsnotify and debounced:
//
//	events, err := src.Watch(ctx)
//	for event := range events {
//	    if event.Err != nil {
//	        logger.Error("stage reload failed", "error", event.Err)
//	        continue // keep the previous pipeline
//	    }
//	    pipeline = event.Pipeline
//	}
//
// FileWatcher is also usable on its own, e.g. to watch an inbox directory
// for new artifacts.
//
// # In-Memory Source
//
// The in-memory source is useful for testing:
//
//	src := source.NewMemorySource(stages...)
//	pipeline, err := src.Load(ctx)
package source
