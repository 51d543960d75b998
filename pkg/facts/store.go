package facts

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// DefaultScoreCeiling is the upper clamp of the score when none is configured.
const DefaultScoreCeiling = 1.0

// Keys of the singleton facts in a snapshot.
const (
	RiskHintsKey = "risk_hints"
	ScoreKey     = "score"
	OutcomeKey   = "outcome"
)

type nsKey struct {
	ns  string
	key string
}

// Store is the append-only, per-run record of facts.
//
// Signals are write-once, tags and risk hints are idempotent set inserts,
// the score only grows within [0, ceiling], and the outcome can only be
// assigned from the finalization phase. Nothing is ever deleted.
type Store struct {
	mu sync.RWMutex

	signals map[nsKey]Fact
	tags    map[nsKey]map[string]Fact
	hints   map[string]Fact

	ceiling   float64
	score     float64
	scoreProv *Provenance

	outcome     *Outcome
	outcomeProv Provenance
}

// NewStore creates an empty store. A non-positive ceiling selects
// DefaultScoreCeiling.
//
// The store holds the facts of exactly one run. Signals are write-once per
// namespace, tags and risk hints only grow, the score only grows up to the
// ceiling, and only finalization provenance may assign the outcome.
//
// Example:
//
//	store := facts.NewStore(1.0)
//	prov := facts.Provenance{Stage: "ingest", Rule: "zero-length", Phase: facts.PhaseCondition}
//	if err := store.PutSignal("ingest", "empty", facts.Bool(true), prov); err != nil {
//	    return err
//	}
//	store.AppendRiskHint("EmptyArtifact", prov)
func NewStore(scoreCeiling float64) *Store {
	if scoreCeiling <= 0 || math.IsNaN(scoreCeiling) || math.IsInf(scoreCeiling, 0) {
		scoreCeiling = DefaultScoreCeiling
	}
	return &Store{
		signals: make(map[nsKey]Fact),
		tags:    make(map[nsKey]map[string]Fact),
		hints:   make(map[string]Fact),
		ceiling: scoreCeiling,
	}
}

// Get returns the signal (namespace, key).
func (s *Store) Get(namespace, key string) (Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.signals[nsKey{namespace, key}]
	return f, ok
}

// PutSignal commits a write-once signal. A second write to the same
// (namespace, key) returns a *DuplicateSignalError and changes nothing.
func (s *Store) PutSignal(namespace, key string, value Value, prov Provenance) error {
	if !value.Valid() {
		return fmt.Errorf("%w: signal %s.%s = %s", ErrInvalidValue, namespace, key, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := nsKey{namespace, key}
	if existing, ok := s.signals[k]; ok {
		return &DuplicateSignalError{
			Namespace: namespace,
			Key:       key,
			Existing:  existing,
			Attempted: value,
			By:        prov,
		}
	}
	s.signals[k] = Fact{Namespace: namespace, Key: key, Kind: KindSignal, Value: value, Provenance: prov}
	return nil
}

// EnsureSignal is the idempotent form of PutSignal: writing the value a
// signal already holds is a no-op, writing a different one is a duplicate.
// It reports whether the signal was newly written.
func (s *Store) EnsureSignal(namespace, key string, value Value, prov Provenance) (bool, error) {
	if existing, ok := s.Get(namespace, key); ok && existing.Value == value {
		return false, nil
	}
	if err := s.PutSignal(namespace, key, value, prov); err != nil {
		return false, err
	}
	return true, nil
}

// AppendTag adds member to the tag set (namespace, set). It reports whether
// the member was new; the first provenance is kept.
func (s *Store) AppendTag(namespace, set, member string, prov Provenance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := nsKey{namespace, set}
	members, ok := s.tags[k]
	if !ok {
		members = make(map[string]Fact)
		s.tags[k] = members
	}
	if _, ok := members[member]; ok {
		return false
	}
	members[member] = Fact{Namespace: namespace, Key: set, Kind: KindTag, Value: Label(member), Provenance: prov}
	return true
}

// Tags returns the sorted members of a tag set and whether the set exists.
func (s *Store) Tags(namespace, set string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.tags[nsKey{namespace, set}]
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, true
}

// HasTag reports whether member is in the set, and whether the set exists.
func (s *Store) HasTag(namespace, set, member string) (present, exists bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, exists := s.tags[nsKey{namespace, set}]
	if !exists {
		return false, false
	}
	_, present = members[member]
	return present, true
}

// AppendRiskHint adds a run-global risk hint. It reports whether the hint
// was new; the first provenance is kept.
func (s *Store) AppendRiskHint(hint string, prov Provenance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hints[hint]; ok {
		return false
	}
	s.hints[hint] = Fact{Key: RiskHintsKey, Kind: KindRiskHint, Value: Label(hint), Provenance: prov}
	return true
}

// HasRiskHint reports whether hint has been recorded.
func (s *Store) HasRiskHint(hint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hints[hint]
	return ok
}

// RiskHints returns the sorted risk hints.
func (s *Store) RiskHints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.hints))
	for h := range s.hints {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// AdjustScore adds delta to the score, clamping at the ceiling, and returns
// the new score. Negative deltas are rejected with ErrNegativeScore.
func (s *Store) AdjustScore(delta float64, prov Provenance) (float64, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return s.Score(), fmt.Errorf("%w: score delta %v", ErrInvalidValue, delta)
	}
	if delta < 0 {
		return s.Score(), fmt.Errorf("%w: %v", ErrNegativeScore, delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.score = math.Min(s.score+delta, s.ceiling)
	p := prov
	s.scoreProv = &p
	return s.score, nil
}

// Score returns the current score.
func (s *Store) Score() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.score
}

// Ceiling returns the score ceiling.
func (s *Store) Ceiling() float64 {
	return s.ceiling
}

// SetOutcome unconditionally replaces the outcome (the "=" assignment).
func (s *Store) SetOutcome(o Outcome, prov Provenance) error {
	if prov.Phase != PhaseFinalization {
		return fmt.Errorf("%w: %s by %s", ErrOutcomeNotPermitted, o.Name, prov)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome = &o
	s.outcomeProv = prov
	return nil
}

// PromoteOutcome assigns o only when no outcome is set or o has a strictly
// higher rank (the "+=" assignment). It reports whether the outcome changed.
func (s *Store) PromoteOutcome(o Outcome, prov Provenance) (bool, error) {
	if prov.Phase != PhaseFinalization {
		return false, fmt.Errorf("%w: %s by %s", ErrOutcomeNotPermitted, o.Name, prov)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != nil && o.Rank <= s.outcome.Rank {
		return false, nil
	}
	s.outcome = &o
	s.outcomeProv = prov
	return true, nil
}

// Outcome returns the current outcome and the provenance of its assignment.
func (s *Store) Outcome() (Outcome, Provenance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.outcome == nil {
		return Outcome{}, Provenance{}, false
	}
	return *s.outcome, s.outcomeProv, true
}

// Snapshot returns every fact in a deterministic order: signals and tags
// by (namespace, key, value), then risk hints, then score and outcome.
func (s *Store) Snapshot() []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Fact, 0, len(s.signals)+len(s.hints)+2)
	for _, f := range s.signals {
		out = append(out, f)
	}
	for _, members := range s.tags {
		for _, f := range members {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Value.String() < b.Value.String()
	})

	hints := make([]Fact, 0, len(s.hints))
	for _, f := range s.hints {
		hints = append(hints, f)
	}
	sort.Slice(hints, func(i, j int) bool {
		return hints[i].Value.String() < hints[j].Value.String()
	})
	out = append(out, hints...)

	if s.scoreProv != nil {
		out = append(out, Fact{Key: ScoreKey, Kind: KindScore, Value: Number(s.score), Provenance: *s.scoreProv})
	}
	if s.outcome != nil {
		out = append(out, Fact{Key: OutcomeKey, Kind: KindOutcome, Value: Label(s.outcome.Name), Provenance: s.outcomeProv})
	}
	return out
}

// Len returns the number of facts a Snapshot would contain.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.signals) + len(s.hints)
	for _, members := range s.tags {
		n += len(members)
	}
	if s.scoreProv != nil {
		n++
	}
	if s.outcome != nil {
		n++
	}
	return n
}
