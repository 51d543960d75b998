package compiler

import (
	"fmt"
	"regexp"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// structuralPass checks stage shape: names, kind-specific sections, bounds
// and outcome declarations.
type structuralPass struct{}

func (p *structuralPass) check(stage *ast.Stage) *ruleErrors.ErrorList {
	errs := ruleErrors.NewErrorList()

	p.checkName(stage, errs)
	p.checkBounds(stage, errs)
	p.checkProbes(stage, errs)
	p.checkRules(stage, errs)

	if stage.IsFinalization() {
		p.checkFinalization(stage, errs)
	} else {
		p.checkOrdinary(stage, errs)
	}

	return errs
}

func (p *structuralPass) checkName(stage *ast.Stage, errs *ruleErrors.ErrorList) {
	switch {
	case stage.Name == "":
		errs.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			"Stage name is required", stage.Location,
			ruleErrors.SuggestMissingField("name", "pdf_analysis"))
	case !namePattern.MatchString(stage.Name):
		errs.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			fmt.Sprintf("Stage name %q is not a valid namespace", stage.Name), stage.Location,
			"Use lower snake_case, e.g. 'pdf_analysis'")
	case ast.IsReserved(stage.Name):
		errs.AddError(ruleErrors.ErrorTypeStructural,
			fmt.Sprintf("Stage name %q is reserved", stage.Name), stage.Location)
	}
}

// checkBounds requires every ceiling to be declared and positive.
func (p *structuralPass) checkBounds(stage *ast.Stage, errs *ruleErrors.ErrorList) {
	b := stage.Bounds
	ceilings := []struct {
		name  string
		value int64
	}{
		{"max_read_bytes", b.MaxReadBytes},
		{"max_scan_bytes", b.MaxScanBytes},
		{"max_depth", b.MaxDepth},
		{"max_members", b.MaxMembers},
	}
	for _, c := range ceilings {
		if c.value <= 0 {
			errs.AddCoded(ruleErrors.ErrorTypeBounds, ruleErrors.CodeUnboundedCeiling,
				fmt.Sprintf("Stage %q declares no positive %s", stage.Name, c.name),
				b.Location, ruleErrors.SuggestMissingField("bounds."+c.name, "1048576"))
		}
	}

	if b.FailMode != ast.FailSoft {
		errs.AddCoded(ruleErrors.ErrorTypeBounds, ruleErrors.CodeUnsupportedFailMode,
			fmt.Sprintf("Stage %q uses fail mode %q; only %q is supported", stage.Name, b.FailMode, ast.FailSoft),
			b.Location, "Set 'fail_mode: soft'")
	}
}

func (p *structuralPass) checkProbes(stage *ast.Stage, errs *ruleErrors.ErrorList) {
	seen := make(map[string]bool, len(stage.Probes))
	for _, probe := range stage.Probes {
		switch {
		case !namePattern.MatchString(probe.Name):
			errs.AddError(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Probe binding name %q is not a valid namespace", probe.Name), probe.Location)
		case ast.IsReserved(probe.Name) || probe.Name == stage.Name:
			errs.AddError(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Probe binding name %q collides with a reserved or stage namespace", probe.Name), probe.Location)
		case seen[probe.Name]:
			errs.AddError(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Duplicate probe binding %q", probe.Name), probe.Location)
		}
		seen[probe.Name] = true

		if !probe.Observe && len(probe.After) > 0 {
			errs.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Probe binding %q declares 'after' but is not an observation probe", probe.Name),
				probe.Location, "Set 'observe: true' or remove 'after'")
		}
	}
}

func (p *structuralPass) checkRules(stage *ast.Stage, errs *ruleErrors.ErrorList) {
	seen := make(map[string]bool, len(stage.Rules)+len(stage.Dispatch))
	for _, rule := range stage.Rules {
		if seen[rule.Name] {
			errs.AddError(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Duplicate rule name %q", rule.Name), rule.Location)
		}
		seen[rule.Name] = true
	}
	for _, rule := range stage.Dispatch {
		if seen[rule.Name] {
			errs.AddError(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Duplicate rule name %q", rule.Name), rule.Location)
		}
		seen[rule.Name] = true
	}
}

func (p *structuralPass) checkFinalization(stage *ast.Stage, errs *ruleErrors.ErrorList) {
	if len(stage.Outcomes) == 0 {
		errs.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			fmt.Sprintf("Finalization stage %q declares no outcomes", stage.Name), stage.Location,
			ruleErrors.SuggestMissingField("outcomes", "[{name: Clean, severity: info}]"))
	}

	seen := make(map[string]bool, len(stage.Outcomes))
	for _, o := range stage.Outcomes {
		if o.Name == "" {
			errs.AddError(ruleErrors.ErrorTypeStructural, "Outcome name is required", o.Location)
			continue
		}
		if seen[o.Name] {
			errs.AddError(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Duplicate outcome %q", o.Name), o.Location)
		}
		seen[o.Name] = true
		if o.Severity.Rank() == 0 {
			errs.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Outcome %q has invalid severity %q", o.Name, o.Severity), o.Location,
				ruleErrors.SuggestName(string(o.Severity), severityNames))
		}
	}

	if stage.Otherwise == "" {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeMissingFallback,
			fmt.Sprintf("Finalization stage %q has no 'otherwise' fallback outcome", stage.Name),
			stage.Location, ruleErrors.SuggestMissingField("otherwise", "Clean"))
	} else if stage.GetOutcome(stage.Otherwise) == nil && len(stage.Outcomes) > 0 {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeUnknownOutcome,
			fmt.Sprintf("Fallback outcome %q is not declared", stage.Otherwise),
			stage.Location, ruleErrors.SuggestName(stage.Otherwise, outcomeNames(stage)))
	}
}

func (p *structuralPass) checkOrdinary(stage *ast.Stage, errs *ruleErrors.ErrorList) {
	if len(stage.Outcomes) > 0 || stage.Otherwise != "" || len(stage.Dispatch) > 0 {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeOutcomeNotPermitted,
			fmt.Sprintf("Stage %q declares outcomes or dispatch rules but is not the finalization stage", stage.Name),
			stage.Location, "Move outcomes, otherwise and dispatch to the stage with 'kind: finalization'")
	}
}

var severityNames = []string{
	string(ast.SeverityInfo),
	string(ast.SeverityLow),
	string(ast.SeverityMedium),
	string(ast.SeverityHigh),
	string(ast.SeverityCritical),
}

func outcomeNames(stage *ast.Stage) []string {
	names := make([]string, 0, len(stage.Outcomes))
	for _, o := range stage.Outcomes {
		names = append(names, o.Name)
	}
	return names
}
