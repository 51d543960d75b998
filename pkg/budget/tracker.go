package budget

import (
	"fmt"
	"sort"
	"sync"
)

// Tracker accounts the resources one stage consumes for one artifact.
//
// Byte and member charges accumulate; depth is a high-water mark. A charge
// that passes a ceiling is still recorded, marks the resource exhausted and
// returns a *BoundExceededError. The tracker never panics and never stops
// accepting charges: exhaustion is data, handled by the caller.
type Tracker struct {
	bounds   Bounds
	usage    Usage
	exceeded map[Resource]bool

	mu sync.RWMutex
}

// NewTracker creates a tracker for the given bounds.
//
// Example:
//
//	tracker := budget.NewTracker(budget.Bounds{
//	    MaxReadBytes: 1 << 20,
//	    MaxScanBytes: 4 << 20,
//	    MaxDepth:     4,
//	    MaxMembers:   256,
//	})
func NewTracker(bounds Bounds) *Tracker {
	return &Tracker{
		bounds:   bounds,
		exceeded: make(map[Resource]bool),
	}
}

// Charge records amount units of r.
func (t *Tracker) Charge(r Resource, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d %s", ErrInvalidCharge, amount, r)
	}
	if !isKnown(r) {
		return fmt.Errorf("%w: unknown resource %q", ErrInvalidCharge, r)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	used := t.usage.Get(r)
	if r == Depth {
		used = max(used, amount)
	} else {
		used += amount
	}
	t.usage.set(r, used)

	if limit := t.bounds.Limit(r); used > limit {
		t.exceeded[r] = true
		return &BoundExceededError{Resource: r, Limit: limit, Used: used}
	}
	return nil
}

// ChargeUsage charges every resource in u and returns the first
// BoundExceededError, in Resources order.
func (t *Tracker) ChargeUsage(u Usage) error {
	var first error
	for _, r := range Resources {
		if u.Get(r) == 0 {
			continue
		}
		if err := t.Charge(r, u.Get(r)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Take grants up to want units of r from the remaining allowance and
// charges what it grants. When want exceeds the allowance the resource is
// marked exhausted and the returned error is a *BoundExceededError.
func (t *Tracker) Take(r Resource, want int64) (int64, error) {
	if want < 0 || !isKnown(r) || r == Depth {
		return 0, fmt.Errorf("%w: take %d %s", ErrInvalidCharge, want, r)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	granted := min(want, t.remaining(r))
	used := t.usage.Get(r) + granted
	t.usage.set(r, used)
	if granted < want {
		t.exceeded[r] = true
		return granted, &BoundExceededError{Resource: r, Limit: t.bounds.Limit(r), Used: used}
	}
	return granted, nil
}

// Refund returns n previously taken units of r. It never clears an
// exhausted mark.
func (t *Tracker) Refund(r Resource, n int64) {
	if n <= 0 || r == Depth || !isKnown(r) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.set(r, max(t.usage.Get(r)-n, 0))
}

// Exhaust marks r as exhausted without charging it. Probes use this when
// they stop early because their allowance ran out.
func (t *Tracker) Exhaust(r Resource) error {
	if !isKnown(r) {
		return fmt.Errorf("%w: unknown resource %q", ErrInvalidCharge, r)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.exceeded[r] = true
	return &BoundExceededError{Resource: r, Limit: t.bounds.Limit(r), Used: t.usage.Get(r)}
}

// Remaining returns the allowance left for r, never negative. For depth it
// is the ceiling itself, since depth does not accumulate.
func (t *Tracker) Remaining(r Resource) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.remaining(r)
}

func (t *Tracker) remaining(r Resource) int64 {
	if t.exceeded[r] {
		return 0
	}
	if r == Depth {
		return t.bounds.MaxDepth
	}
	return max(t.bounds.Limit(r)-t.usage.Get(r), 0)
}

// Allowance returns the remaining allowance for every resource.
func (t *Tracker) Allowance() Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var a Usage
	for _, r := range Resources {
		a.set(r, t.remaining(r))
	}
	return a
}

// Usage returns the consumption so far.
func (t *Tracker) Usage() Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.usage
}

// IsExceeded reports whether r has been exhausted.
func (t *Tracker) IsExceeded(r Resource) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.exceeded[r]
}

// Exceeded returns the exhausted resources, sorted.
func (t *Tracker) Exceeded() []Resource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Resource, 0, len(t.exceeded))
	for r := range t.exceeded {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AnyExceeded reports whether any resource has been exhausted.
func (t *Tracker) AnyExceeded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.exceeded) > 0
}

// Status returns a snapshot of bounds, usage and exhausted resources.
func (t *Tracker) Status() *Status {
	return &Status{
		Bounds:   t.bounds,
		Usage:    t.Usage(),
		Exceeded: t.Exceeded(),
	}
}

func isKnown(r Resource) bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}
