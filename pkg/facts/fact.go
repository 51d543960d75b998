package facts

import "fmt"

// Kind is the category of a fact.
type Kind string

const (
	KindSignal   Kind = "signal"
	KindTag      Kind = "tag"
	KindRiskHint Kind = "risk_hint"
	KindScore    Kind = "score"
	KindOutcome  Kind = "outcome"
)

// Phase is the stage phase that produced a fact.
type Phase string

const (
	PhaseObservation    Phase = "observation"
	PhaseClassification Phase = "classification"
	PhaseCondition      Phase = "condition"
	PhaseFinalization   Phase = "finalization"
)

// Provenance identifies the stage, rule and phase that produced a fact.
// Engine-produced facts use a rule name in angle brackets, e.g. "<budget>".
type Provenance struct {
	Stage string `json:"stage"`
	Rule  string `json:"rule,omitempty"`
	Phase Phase  `json:"phase"`
}

// String returns "stage/rule (phase)".
func (p Provenance) String() string {
	if p.Rule == "" {
		return fmt.Sprintf("%s (%s)", p.Stage, p.Phase)
	}
	return fmt.Sprintf("%s/%s (%s)", p.Stage, p.Rule, p.Phase)
}

// Fact is one committed entry of the run record.
//
// For signals Key is the signal key and Value the signal value. For tags Key
// is the tag set and Value the member label. Risk hints have no namespace
// and carry the hint as a label. Score and outcome are singletons.
type Fact struct {
	Namespace  string     `json:"namespace,omitempty"`
	Key        string     `json:"key"`
	Kind       Kind       `json:"kind"`
	Value      Value      `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// Outcome is a resolved verdict together with its severity rank.
type Outcome struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Rank     int    `json:"rank"`
}
