package ast

import "strings"

// ReferenceKind identifies what a condition field reads.
type ReferenceKind string

const (
	RefFact            ReferenceKind = "fact"             // <namespace>.<key> or bare <key>
	RefContext         ReferenceKind = "context"          // context.<field>
	RefRiskHints       ReferenceKind = "risk_hints"       // the run-global risk hint set
	RefScore           ReferenceKind = "score"            // the accumulated score
	RefOutcome         ReferenceKind = "outcome"          // current outcome name
	RefOutcomeSeverity ReferenceKind = "outcome_severity" // severity of the current outcome
)

// Reserved names that cannot be used as stage or probe namespaces.
const (
	ReservedContext   = "context"
	ReservedRiskHints = "risk_hints"
	ReservedScore     = "score"
	ReservedOutcome   = "outcome"
)

// IsReserved reports whether name collides with a built-in reference root.
func IsReserved(name string) bool {
	switch name {
	case ReservedContext, ReservedRiskHints, ReservedScore, ReservedOutcome:
		return true
	}
	return false
}

// ContextFields lists the context.<field> references and their value types.
// claimed.<key> is open-ended and always a string.
var ContextFields = map[string]ValueType{
	"size":            ValueTypeNumber,
	"bounds_exceeded": ValueTypeBoolean,
	"bytes_read":      ValueTypeNumber,
	"bytes_scanned":   ValueTypeNumber,
	"depth":           ValueTypeNumber,
	"members":         ValueTypeNumber,
	"probe_errors":    ValueTypeNumber,
	"partial_parses":  ValueTypeNumber,
}

// ClaimedPrefix prefixes claimed metadata context fields.
const ClaimedPrefix = "claimed."

// Reference is a parsed condition field.
type Reference struct {
	Kind      ReferenceKind
	Namespace string // empty for a bare key; resolved against the evaluating stage
	Key       string // fact key, tag set name, or context field
}

// ParseReference splits a field reference into its parts.
// It returns false for empty or malformed references.
func ParseReference(field string) (Reference, bool) {
	if field == "" || strings.HasPrefix(field, ".") || strings.HasSuffix(field, ".") {
		return Reference{}, false
	}

	switch field {
	case ReservedRiskHints:
		return Reference{Kind: RefRiskHints}, true
	case ReservedScore:
		return Reference{Kind: RefScore}, true
	case ReservedOutcome:
		return Reference{Kind: RefOutcome}, true
	case "outcome.severity":
		return Reference{Kind: RefOutcomeSeverity}, true
	}

	head, rest, dotted := strings.Cut(field, ".")
	if !dotted {
		return Reference{Kind: RefFact, Key: field}, true
	}
	if head == ReservedContext {
		return Reference{Kind: RefContext, Key: rest}, true
	}
	if IsReserved(head) || strings.Contains(rest, ".") {
		return Reference{}, false
	}
	return Reference{Kind: RefFact, Namespace: head, Key: rest}, true
}

// ContextType returns the value type of a context field reference.
func ContextType(key string) (ValueType, bool) {
	if strings.HasPrefix(key, ClaimedPrefix) && len(key) > len(ClaimedPrefix) {
		return ValueTypeString, true
	}
	t, ok := ContextFields[key]
	return t, ok
}
