package ast

// StageKind distinguishes ordinary stages from the terminal finalization stage.
type StageKind string

const (
	StageKindOrdinary     StageKind = "ordinary"
	StageKindFinalization StageKind = "finalization"
)

// FailMode controls what happens when a stage exhausts one of its bounds.
type FailMode string

const (
	// FailSoft records the exhaustion as facts and continues the run.
	FailSoft FailMode = "soft"

	// FailHard is reserved. It would abort the stage and mark the artifact
	// Inconclusive; the compiler rejects it.
	FailHard FailMode = "hard"
)

// Severity ranks outcomes. Promotion only ever moves to a higher rank.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank converts a severity to a comparable integer. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// Stage represents the root AST node of one stage definition.
type Stage struct {
	// Metadata (descriptive only, no behavioral effect)
	Name        string // Stage name; also the fact namespace (snake_case)
	Version     string // Stage version (semver)
	Description string
	Author      string

	Kind  StageKind // ordinary or finalization
	Order int       // Position in the pipeline (ascending)

	Bounds   Bounds            // Declared resource ceilings
	Sources  []string          // Namespaces this stage may read besides its own
	Probes   []*ProbeBinding   // Probe bindings, in declared order
	Magic    []*MagicSignature // Header signatures checked in the observation phase
	Classify []*Classifier     // Presence -> canonical fact mappings
	Rules    []*Rule           // Condition rules, in declared order

	// Finalization only
	Outcomes  []*OutcomeDecl
	Otherwise string // Fallback outcome name
	Dispatch  []*DispatchRule

	SourceFile string
	Location   Location
}

// IsFinalization returns true for the terminal stage.
func (s *Stage) IsFinalization() bool {
	return s.Kind == StageKindFinalization
}

// GetRule returns the rule with the given name, or nil if not found.
func (s *Stage) GetRule(name string) *Rule {
	for _, rule := range s.Rules {
		if rule.Name == name {
			return rule
		}
	}
	return nil
}

// EnabledRules returns all enabled rules in declared order.
func (s *Stage) EnabledRules() []*Rule {
	var enabled []*Rule
	for _, rule := range s.Rules {
		if rule.IsEnabled() {
			enabled = append(enabled, rule)
		}
	}
	return enabled
}

// GetProbe returns the probe binding with the given name, or nil if not found.
func (s *Stage) GetProbe(name string) *ProbeBinding {
	for _, p := range s.Probes {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// GetOutcome returns the outcome declaration with the given name, or nil if not found.
func (s *Stage) GetOutcome(name string) *OutcomeDecl {
	for _, o := range s.Outcomes {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Bounds are the resource ceilings declared by a stage.
type Bounds struct {
	MaxReadBytes int64
	MaxScanBytes int64
	MaxDepth     int64
	MaxMembers   int64
	FailMode     FailMode
	Location     Location
}

// ProbeBinding binds a probe kind to a stage under a namespace of its own.
type ProbeBinding struct {
	Name     string                 // Binding name; probe facts land in this namespace
	Kind     string                 // Probe kind looked up in the registry
	Config   map[string]interface{} // Opaque probe configuration
	Observe  bool                   // Run during the observation phase
	After    []string               // Explicit dependencies on other bindings
	Location Location
}

// MagicSignature matches literal bytes at a fixed offset of the artifact.
type MagicSignature struct {
	Signal   string // Signal key set to true on match
	Offset   int64
	Bytes    []byte
	Location Location
}

// End returns the offset one past the last byte of the signature.
func (m *MagicSignature) End() int64 {
	return m.Offset + int64(len(m.Bytes))
}

// OutcomeDecl declares a verdict the finalization stage may assign.
type OutcomeDecl struct {
	Name        string
	Description string
	Severity    Severity
	Location    Location
}
