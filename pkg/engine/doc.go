// Package engine runs artifacts through a compiled stage pipeline and
// produces a finalized, reproducible triage record.
//
// # Runs
//
// A run threads one fact store and one read-only context through every
// stage in pipeline order. Each stage gets its own budget tracker and runs
// four phases exactly once:
//
//  1. observation: magic signatures, then the observation probes in
//     dependency waves. Probes of a wave run concurrently on split
//     allowances and are merged in declared order after the wave.
//  2. classification: presence of an observation maps to canonical facts.
//  3. condition: every enabled rule is evaluated in declared order and
//     every rule whose condition is True fires.
//  4. finalization (last stage only): the fallback outcome applies when
//     no assignment fired, then dispatch rules queue emissions and
//     deferred requests.
//
// Conditions are three-valued. A reference to a fact nobody produced is
// Unknown, not false, and only True fires a rule:
//
//	when:
//	  not: pdf.has_javascript   # Unknown when the pdf probe never ran
//
// # Failures are data
//
// Nothing inside a run raises. A rejected signal write, a failed or
// missing probe, a partial parse and an exhausted bound each leave facts
// (ProbeError, PartialParse, BoundsExceeded tag sets and the
// context.bounds_exceeded flag) and a Diagnostic. Run only fails when no
// pipeline is installed, the artifact is invalid, or ctx is cancelled
// between stages. There are no internal timeouts.
//
// # Usage
//
//	eng, err := engine.New(engine.DefaultEngineConfig().WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := eng.Load(ctx, source.NewFileSource("./stages", logger)); err != nil {
//		return err
//	}
//	result, err := eng.Run(ctx, engine.BytesArtifact("sample.pdf", data, map[string]string{"extension": "pdf"}))
//
// Result.Digest hashes everything a repeated run must reproduce, which
// makes determinism checkable across processes.
package engine
