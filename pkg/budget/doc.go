// Package budget provides per-stage resource accounting.
//
// # Overview
//
// Every stage declares ceilings for four resources:
//
//   - bytes_read: bytes read from the artifact
//   - bytes_scanned: bytes examined by probes, including decoded content
//   - depth: container nesting depth (a high-water mark, not a sum)
//   - members: container members visited
//
// A Tracker is created per stage per artifact. Exceeding a ceiling never
// aborts anything: the charge is recorded, the resource is marked exhausted
// and Charge returns a *BoundExceededError that the engine turns into facts.
//
// # Usage
//
//	tracker := budget.NewTracker(budget.Bounds{
//	    MaxReadBytes: 1 << 20,
//	    MaxScanBytes: 4 << 20,
//	    MaxDepth:     4,
//	    MaxMembers:   256,
//	})
//
//	if err := tracker.Charge(budget.BytesScanned, n); errors.Is(err, budget.ErrBoundExceeded) {
//	    // record BoundsExceeded facts and carry on
//	}
//
//	allowance := tracker.Allowance() // what a probe may still consume
package budget
