package ast

// Rule represents a condition -> actions rule in the AST.
// Every rule in a stage is evaluated in declared order and every rule whose
// condition holds fires; there is no first-match short circuit.
type Rule struct {
	Name        string         // Unique rule name within the stage
	Description string         // Human-readable description
	Enabled     bool           // Whether rule is active (default: true)
	Conditions  *ConditionNode // Root condition node; nil means always
	Actions     []*Action      // Actions applied in order when the condition holds
	Location    Location       // Source location
}

// IsEnabled returns true if the rule is enabled.
func (r *Rule) IsEnabled() bool {
	return r.Enabled
}

// HasConditions returns true if the rule has conditions defined.
func (r *Rule) HasConditions() bool {
	return r.Conditions != nil
}

// HasActionType returns true if the rule has at least one action of the given type.
func (r *Rule) HasActionType(actionType ActionType) bool {
	for _, action := range r.Actions {
		if action.Type == actionType {
			return true
		}
	}
	return false
}

// Classifier maps the presence of an observation to canonical facts.
// It carries no boolean logic and is always safe to re-run.
type Classifier struct {
	Observed string    // Field reference whose presence triggers the mapping
	Actions  []*Action // Accumulation actions (signal, tag, risk_hint)
	Location Location  // Source location
}

// DispatchRule is evaluated by the finalization stage after outcome resolution.
type DispatchRule struct {
	Name       string
	Conditions *ConditionNode
	Actions    []*Action // emit / defer only
	Location   Location
}
