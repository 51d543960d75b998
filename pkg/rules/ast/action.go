package ast

// ActionType represents the type of effect a matched rule applies.
type ActionType string

const (
	ActionTypeSignal         ActionType = "signal"          // Write-once boolean/numeric/label signal
	ActionTypeTag            ActionType = "tag"             // Append a member to a tag set
	ActionTypeRiskHint       ActionType = "risk_hint"       // Append a risk hint token
	ActionTypeScore          ActionType = "score"           // Additive, clamped score adjustment
	ActionTypeRun            ActionType = "run"             // Request a bounded probe run
	ActionTypeEmit           ActionType = "emit"            // Emit an event for the downstream mediator
	ActionTypeDefer          ActionType = "defer"           // Request a deferred external action
	ActionTypeSetOutcome     ActionType = "set_outcome"     // outcome = X (unconditional override)
	ActionTypePromoteOutcome ActionType = "promote_outcome" // outcome += X (only upward)
)

// IsOutcome returns true for outcome-assigning action types.
func (t ActionType) IsOutcome() bool {
	return t == ActionTypeSetOutcome || t == ActionTypePromoteOutcome
}

// IsAccumulation returns true for action types a classification mapping may use.
func (t ActionType) IsAccumulation() bool {
	return t == ActionTypeSignal || t == ActionTypeTag || t == ActionTypeRiskHint
}

// IsDispatch returns true for action types a dispatch rule may use.
func (t ActionType) IsDispatch() bool {
	return t == ActionTypeEmit || t == ActionTypeDefer
}

// Action represents an action node in the AST.
type Action struct {
	Type       ActionType            // Type of action
	Parameters map[string]*ValueNode // Action parameters (type-specific)
	Location   Location              // Source location
}

// GetParameter returns the parameter value for the given key, or nil if not found.
func (a *Action) GetParameter(key string) *ValueNode {
	return a.Parameters[key]
}

// HasParameter returns true if the action has a parameter with the given key.
func (a *Action) HasParameter(key string) bool {
	_, ok := a.Parameters[key]
	return ok
}

// GetStringParameter returns the string value of a parameter.
// Returns empty string if parameter doesn't exist or is not a string.
func (a *Action) GetStringParameter(key string) string {
	if val := a.GetParameter(key); val != nil && val.Type == ValueTypeString {
		if str, ok := val.Value.(string); ok {
			return str
		}
	}
	return ""
}

// GetNumberParameter returns the numeric value of a parameter and whether it was present.
func (a *Action) GetNumberParameter(key string) (float64, bool) {
	if val := a.GetParameter(key); val != nil && val.Type == ValueTypeNumber {
		if num, ok := val.Value.(float64); ok {
			return num, true
		}
	}
	return 0, false
}

// GetStringListParameter returns the string elements of an array parameter.
func (a *Action) GetStringListParameter(key string) []string {
	return a.GetParameter(key).Strings()
}
