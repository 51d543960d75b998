// Package facts holds the per-run record a triage pipeline accumulates.
//
// A Store keeps namespaced, write-once signals, append-only tag sets, a
// run-global risk hint set, a clamped additive score and a single outcome.
// Every fact carries the provenance (stage, rule, phase) that produced it.
// Nothing is ever deleted, so a Snapshot taken at the end of a run explains
// the whole verdict.
//
// Context is the read-only ambient view rules get of the artifact: claimed
// metadata, size, cumulative resource usage and the bounds_exceeded flag.
package facts
