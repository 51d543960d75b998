// Package probe defines the interface between the rule engine and the
// bounded parsers that turn artifact bytes into observations.
//
// Probes are registered by kind in a Registry. Stages bind a kind under a
// binding name, and the facts a probe reports land in that binding's
// namespace, e.g. the has_javascript fact of a binding named "pdf" is read
// by rules as pdf.has_javascript.
//
// # Failure model
//
// A probe never fails a run. A missing kind yields an UnavailableError, a
// returned error or a panic yields an Error, and both produce an Outcome
// in StateError. The engine records these as facts.
//
// # Scheduling
//
// Scheduler.RunWave runs independent probes concurrently with
// golang.org/x/sync/errgroup and returns outcomes in request order:
//
//	sched := probe.NewScheduler(registry, 4, logger)
//	for _, wave := range stage.Waves {
//	    outcomes := sched.RunWave(ctx, requestsFor(wave))
//	    merge(outcomes)
//	}
package probe
