package source

import (
	"context"
	"sync"

	"mercator-hq/triage/pkg/rules/ast"
	"mercator-hq/triage/pkg/rules/compiler"
)

// MemorySource is an in-memory stage source for testing.
type MemorySource struct {
	mu       sync.Mutex
	stages   []*ast.Stage
	watchers []chan ReloadEvent
}

// NewMemorySource creates a new in-memory stage source.
func NewMemorySource(stages ...*ast.Stage) *MemorySource {
	return &MemorySource{stages: stages}
}

// Load compiles the stages held in memory.
func (s *MemorySource) Load(ctx context.Context) (*compiler.Pipeline, error) {
	s.mu.Lock()
	stages := make([]*ast.Stage, len(s.stages))
	copy(stages, s.stages)
	s.mu.Unlock()

	return compiler.NewCompiler().Compile(stages)
}

// Watch returns a channel that receives an event for every SetStages call.
func (s *MemorySource) Watch(ctx context.Context) (<-chan ReloadEvent, error) {
	ch := make(chan ReloadEvent, 1)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// SetStages replaces the stages and notifies watchers with the recompiled
// pipeline. A pending, unread event is replaced by the newer one.
func (s *MemorySource) SetStages(stages ...*ast.Stage) {
	s.mu.Lock()
	s.stages = stages
	s.mu.Unlock()

	pipeline, err := s.Load(context.Background())
	event := ReloadEvent{Pipeline: pipeline, Err: err}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers {
		select {
		case <-w:
		default:
		}
		w <- event
	}
}
