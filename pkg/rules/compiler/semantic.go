package compiler

import (
	"fmt"
	"strings"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

var operatorNames = []string{
	string(ast.OperatorIs), string(ast.OperatorEqual), string(ast.OperatorNotEqual),
	string(ast.OperatorLessThan), string(ast.OperatorGreaterThan),
	string(ast.OperatorLessEqual), string(ast.OperatorGreaterEqual),
	string(ast.OperatorContains), string(ast.OperatorIsSome), string(ast.OperatorIsNone),
}

// semanticPass checks field references, operator/value compatibility and
// probe dependencies, and plans the observation waves.
type semanticPass struct{}

func (p *semanticPass) check(stage *Stage) *ruleErrors.ErrorList {
	errs := ruleErrors.NewErrorList()

	for _, c := range stage.Classify {
		p.checkReference(stage, c.Observed, c.Location, errs)
	}
	for _, rule := range stage.Rules {
		p.checkCondition(stage, rule.Conditions, errs)
		p.checkEmitFields(stage, rule.Actions, errs)
	}
	for _, rule := range stage.Dispatch {
		p.checkCondition(stage, rule.Conditions, errs)
		p.checkEmitFields(stage, rule.Actions, errs)
	}

	waves, err := PlanWaves(stage.Probes)
	if err != nil {
		errs.Add(err)
	} else {
		stage.Waves = waves
	}

	return errs
}

func (p *semanticPass) checkCondition(stage *Stage, cond *ast.ConditionNode, errs *ruleErrors.ErrorList) {
	if cond == nil {
		return
	}
	if cond.IsLogical() {
		if cond.Type == ast.ConditionTypeNot && len(cond.Children) != 1 {
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeInvalidCondition,
				"'not' takes exactly one condition", cond.Location, "")
		}
		for _, child := range cond.Children {
			p.checkCondition(stage, child, errs)
		}
		return
	}

	invalid := func(format string, args ...interface{}) {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeInvalidCondition,
			fmt.Sprintf(format, args...), cond.Location, "")
	}

	ref, ok := p.checkReference(stage, cond.Field, cond.Location, errs)
	if !ok {
		return
	}

	op := cond.Operator
	valid := false
	for _, name := range operatorNames {
		if string(op) == name {
			valid = true
			break
		}
	}
	if !valid {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeInvalidCondition,
			fmt.Sprintf("Unknown operator %q", op), cond.Location,
			ruleErrors.SuggestName(string(op), operatorNames))
		return
	}

	switch {
	case op.IsPresence():
		if !cond.Value.IsNull() {
			invalid("%s takes no value", op)
		}
		return
	case cond.Value.IsNull():
		invalid("%s on %q requires a value", op, cond.Field)
		return
	case cond.Value.Type == ast.ValueTypeArray:
		invalid("%s on %q cannot compare against a list", op, cond.Field)
		return
	case op.IsOrdering() && cond.Value.Type != ast.ValueTypeNumber:
		invalid("%s on %q requires a numeric value", op, cond.Field)
		return
	case op == ast.OperatorContains:
		if cond.Value.Type != ast.ValueTypeString {
			invalid("contains on %q requires a string member", cond.Field)
		}
		if ref.Kind != ast.RefFact && ref.Kind != ast.RefRiskHints {
			invalid("contains requires a set-typed field, %q is not one", cond.Field)
		}
		return
	}

	// Typed references must compare against values of their own type.
	var want ast.ValueType
	switch ref.Kind {
	case ast.RefContext:
		want, _ = ast.ContextType(ref.Key)
	case ast.RefScore:
		want = ast.ValueTypeNumber
	case ast.RefOutcome, ast.RefOutcomeSeverity:
		want = ast.ValueTypeString
	case ast.RefRiskHints:
		invalid("risk_hints is a set; use contains")
		return
	}
	if want != "" && cond.Value.Type != want {
		invalid("%q is a %s and cannot be compared with a %s", cond.Field, want, cond.Value.Type)
	}
	if ref.Kind == ast.RefOutcome && stage.IsFinalization() && cond.Value.Type == ast.ValueTypeString {
		if name := cond.Value.Value.(string); stage.GetOutcome(name) == nil {
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeUnknownOutcome,
				fmt.Sprintf("Condition compares against undeclared outcome %q", name), cond.Location,
				ruleErrors.SuggestName(name, outcomeNames(stage.Stage)))
		}
	}
}

// checkReference parses a field reference and checks that the stage may read it.
func (p *semanticPass) checkReference(stage *Stage, field string, loc ast.Location, errs *ruleErrors.ErrorList) (ast.Reference, bool) {
	ref, ok := ast.ParseReference(field)
	if !ok {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeInvalidCondition,
			fmt.Sprintf("Malformed field reference %q", field), loc,
			"Use <namespace>.<key>, a bare key, or context.<field>")
		return ref, false
	}

	switch ref.Kind {
	case ast.RefContext:
		if _, known := ast.ContextType(ref.Key); !known {
			fields := make([]string, 0, len(ast.ContextFields))
			for name := range ast.ContextFields {
				fields = append(fields, name)
			}
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeInvalidCondition,
				fmt.Sprintf("Unknown context field %q", ref.Key), loc,
				ruleErrors.SuggestName(ref.Key, fields))
			return ref, false
		}
	case ast.RefOutcome, ast.RefOutcomeSeverity:
		if !stage.IsFinalization() {
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeOutcomeNotPermitted,
				fmt.Sprintf("%q can only be read by the finalization stage", field), loc, "")
			return ref, false
		}
	case ast.RefFact:
		if ref.Namespace != "" && !stage.CanRead(ref.Namespace) {
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeUndeclaredSource,
				fmt.Sprintf("Stage %q reads namespace %q which is not among its sources", stage.Name, ref.Namespace), loc,
				fmt.Sprintf("Add %q to 'sources'", ref.Namespace))
			return ref, false
		}
	}
	return ref, true
}

func (p *semanticPass) checkEmitFields(stage *Stage, actions []*ast.Action, errs *ruleErrors.ErrorList) {
	for _, action := range actions {
		if action.Type != ast.ActionTypeEmit {
			continue
		}
		for _, field := range action.GetStringListParameter("with") {
			if strings.TrimSpace(field) == "" {
				continue
			}
			p.checkReference(stage, field, action.Location, errs)
		}
	}
}
