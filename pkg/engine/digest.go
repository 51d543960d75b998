package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mercator-hq/triage/pkg/budget"
	"mercator-hq/triage/pkg/facts"
)

// digestInput is the part of a result that identical runs must reproduce.
// Run IDs, timings and traces are left out.
type digestInput struct {
	Facts          []facts.Fact      `json:"facts"`
	Outcome        facts.Outcome     `json:"outcome"`
	Score          float64           `json:"score"`
	RiskHints      []string          `json:"risk_hints"`
	Emissions      []Emission        `json:"emissions"`
	Deferred       []DeferredRequest `json:"deferred"`
	Diagnostics    []Diagnostic      `json:"diagnostics"`
	Usage          budget.Usage      `json:"usage"`
	BoundsExceeded bool              `json:"bounds_exceeded"`
}

// Digest returns the hex SHA-256 of the canonical JSON encoding of the
// facts, outcome, batches and consumption. Two runs of the same artifact
// against the same pipeline produce the same digest.
func (r *Result) Digest() string {
	in := digestInput{
		Facts:          r.Facts,
		Outcome:        r.Outcome,
		Score:          r.Score,
		RiskHints:      r.RiskHints,
		Emissions:      r.Emissions,
		Deferred:       r.Deferred,
		Diagnostics:    r.Diagnostics,
		Usage:          r.Usage,
		BoundsExceeded: r.BoundsExceeded,
	}
	h := sha256.New()
	// Every field is a plain struct, slice or string; encoding cannot fail.
	_ = json.NewEncoder(h).Encode(in)
	return hex.EncodeToString(h.Sum(nil))
}
