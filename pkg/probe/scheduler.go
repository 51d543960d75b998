package probe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scheduler runs probe requests against a registry.
//
// A wave is a set of requests with no dependencies among each other. The
// requests of a wave run concurrently, and RunWave only returns once every
// one of them has finished, with outcomes in request order. Callers merge
// the outcomes afterwards, so nothing observes a partly merged wave.
type Scheduler struct {
	registry *Registry
	logger   *slog.Logger
	limit    int
}

// NewScheduler creates a scheduler. A non-positive limit selects
// runtime.GOMAXPROCS(0) concurrent probes per wave.
func NewScheduler(registry *Registry, limit int, logger *slog.Logger) *Scheduler {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Scheduler{
		registry: registry,
		logger:   logger,
		limit:    limit,
	}
}

// Registry returns the registry the scheduler resolves kinds against.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// RunWave runs every request concurrently and returns their outcomes in
// request order. Probe failures are reported in the outcomes, never as an
// error.
func (s *Scheduler) RunWave(ctx context.Context, reqs []*Request) []*Outcome {
	outcomes := make([]*Outcome, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i] = s.Run(gctx, req)
			return nil
		})
	}
	_ = g.Wait() // failures are captured per outcome

	return outcomes
}

// Run runs a single request synchronously.
func (s *Scheduler) Run(ctx context.Context, req *Request) (out *Outcome) {
	out = &Outcome{Request: req}

	p, ok := s.registry.Lookup(req.Kind)
	if !ok {
		out.Err = &UnavailableError{Binding: req.Binding, Kind: req.Kind}
		out.Result = &Result{State: StateError, Detail: out.Err.Error()}
		s.logger.Warn("probe unavailable", "probe", req.Binding, "kind", req.Kind)
		return out
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = &Error{Binding: req.Binding, Kind: req.Kind, Cause: fmt.Errorf("panic: %v", r)}
			out.Result = &Result{State: StateError, Detail: out.Err.Error()}
		}
		out.Duration = time.Since(start)
		s.logger.Debug("probe finished",
			"probe", req.Binding,
			"kind", req.Kind,
			"state", out.Result.State,
			"duration", out.Duration,
		)
	}()

	if err := ctx.Err(); err != nil {
		out.Err = &Error{Binding: req.Binding, Kind: req.Kind, Cause: err}
		out.Result = &Result{State: StateError, Detail: err.Error()}
		return out
	}

	result, err := p.Run(ctx, req)
	switch {
	case err != nil:
		out.Err = &Error{Binding: req.Binding, Kind: req.Kind, Cause: err}
		out.Result = &Result{State: StateError, Detail: err.Error()}
	case result == nil:
		out.Err = &Error{Binding: req.Binding, Kind: req.Kind, Cause: fmt.Errorf("no result")}
		out.Result = &Result{State: StateError, Detail: "no result"}
	default:
		if result.State == "" {
			result.State = StateOK
		}
		out.Result = result
	}
	return out
}
