package compiler

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

var actionTypeNames = []string{
	string(ast.ActionTypeSignal),
	string(ast.ActionTypeTag),
	string(ast.ActionTypeRiskHint),
	string(ast.ActionTypeScore),
	string(ast.ActionTypeRun),
	string(ast.ActionTypeEmit),
	string(ast.ActionTypeDefer),
	string(ast.ActionTypeSetOutcome),
	string(ast.ActionTypePromoteOutcome),
}

// actionPass checks action parameters and where each action type may appear.
// It also records every declared signal key so duplicates are caught at load time.
type actionPass struct{}

type actionSite int

const (
	siteClassify actionSite = iota
	siteRule
	siteDispatch
)

func (p *actionPass) check(stage *Stage) *ruleErrors.ErrorList {
	errs := ruleErrors.NewErrorList()

	for _, m := range stage.Magic {
		p.declareSignal(stage, m.Signal, m.Location, errs)
	}
	for _, c := range stage.Classify {
		for _, action := range c.Actions {
			p.checkAction(stage, action, siteClassify, "classify "+c.Observed, errs)
		}
	}
	for _, rule := range stage.Rules {
		for _, action := range rule.Actions {
			p.checkAction(stage, action, siteRule, rule.Name, errs)
		}
	}
	for _, rule := range stage.Dispatch {
		for _, action := range rule.Actions {
			p.checkAction(stage, action, siteDispatch, rule.Name, errs)
		}
	}

	return errs
}

func (p *actionPass) declareSignal(stage *Stage, key string, loc ast.Location, errs *ruleErrors.ErrorList) {
	if !keyPattern.MatchString(key) {
		errs.AddCoded(ruleErrors.ErrorTypeStructural, ruleErrors.CodeInvalidAction,
			fmt.Sprintf("Signal key %q is not a valid identifier", key), loc,
			"Use letters, digits and underscores, e.g. 'PdfHasJavascript'")
		return
	}
	if first, ok := stage.Signals[key]; ok {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeDuplicateSignal,
			fmt.Sprintf("Signal %q is already written at %s; signals are write-once", key, first), loc,
			"Use a tag or a distinct signal key")
		return
	}
	stage.Signals[key] = loc
}

func (p *actionPass) checkAction(stage *Stage, action *ast.Action, site actionSite, owner string, errs *ruleErrors.ErrorList) {
	invalid := func(format string, args ...interface{}) {
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeInvalidAction,
			fmt.Sprintf("%s: ", owner)+fmt.Sprintf(format, args...), action.Location, "")
	}

	switch {
	case site == siteClassify && !action.Type.IsAccumulation():
		invalid("classification may only use signal, tag or risk_hint actions, got %q", action.Type)
		return
	case site == siteDispatch && !action.Type.IsDispatch():
		invalid("dispatch rules may only use emit or defer actions, got %q", action.Type)
		return
	}

	switch action.Type {
	case ast.ActionTypeSignal:
		p.checkSignal(stage, action, invalid, errs)

	case ast.ActionTypeTag:
		if action.GetStringParameter("value") == "" {
			invalid("'tag' action requires a string 'value'")
		}
		if action.HasParameter("set") && !keyPattern.MatchString(action.GetStringParameter("set")) {
			invalid("'tag' action has invalid set name %s", action.GetParameter("set"))
		}

	case ast.ActionTypeRiskHint:
		if !keyPattern.MatchString(action.GetStringParameter("value")) {
			invalid("'risk_hint' action requires an identifier 'value'")
		}

	case ast.ActionTypeScore:
		delta, ok := action.GetNumberParameter("delta")
		switch {
		case !ok:
			invalid("'score' action requires a numeric 'delta'")
		case delta < 0:
			invalid("score delta %g is negative; score is additive only", delta)
		case math.IsInf(delta, 0) || math.IsNaN(delta):
			invalid("score delta must be finite")
		}

	case ast.ActionTypeRun:
		name := action.GetStringParameter("probe")
		if stage.GetProbe(name) == nil {
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeUnknownProbe,
				fmt.Sprintf("%s: 'run' references undeclared probe %q", owner, name), action.Location,
				ruleErrors.SuggestName(name, probeNames(stage.Stage)))
		}

	case ast.ActionTypeEmit:
		if !keyPattern.MatchString(action.GetStringParameter("kind")) {
			invalid("'emit' action requires an identifier 'kind'")
		}

	case ast.ActionTypeDefer:
		target := action.GetStringParameter("target")
		if _, _, ok := SplitDeferTarget(target); !ok {
			invalid("deferred target %q must have the form Actor::Action", target)
		}

	case ast.ActionTypeSetOutcome, ast.ActionTypePromoteOutcome:
		if !stage.IsFinalization() {
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeOutcomeNotPermitted,
				fmt.Sprintf("%s: outcome assignment is only permitted in the finalization stage", owner),
				action.Location, "Record a signal or risk hint here and assign the outcome in finalization")
			return
		}
		name := action.GetStringParameter("outcome")
		if stage.GetOutcome(name) == nil {
			errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeUnknownOutcome,
				fmt.Sprintf("%s: outcome %q is not declared", owner, name), action.Location,
				ruleErrors.SuggestName(name, outcomeNames(stage.Stage)))
		}

	default:
		errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeInvalidAction,
			fmt.Sprintf("%s: unknown action type %q", owner, action.Type), action.Location,
			ruleErrors.SuggestName(string(action.Type), actionTypeNames))
	}
}

func (p *actionPass) checkSignal(stage *Stage, action *ast.Action, invalid func(string, ...interface{}), errs *ruleErrors.ErrorList) {
	key := action.GetStringParameter("key")
	p.declareSignal(stage, key, action.Location, errs)

	value := action.GetParameter("value")
	if value == nil {
		return // defaults to true
	}

	switch value.Type {
	case ast.ValueTypeBoolean, ast.ValueTypeString:
		if action.HasParameter("min") || action.HasParameter("max") {
			invalid("signal %q declares bounds but its value is not numeric", key)
		}
	case ast.ValueTypeNumber:
		n := value.Value.(float64)
		if math.IsInf(n, 0) || math.IsNaN(n) {
			invalid("signal %q value must be finite", key)
			return
		}
		lo, hasLo := action.GetNumberParameter("min")
		hi, hasHi := action.GetNumberParameter("max")
		if hasLo && hasHi && lo > hi {
			invalid("signal %q has min %g greater than max %g", key, lo, hi)
		}
		if (hasLo && n < lo) || (hasHi && n > hi) {
			invalid("signal %q value %g is outside its declared bounds", key, n)
		}
	default:
		invalid("signal %q value must be a boolean, number or string", key)
	}
}

// SplitDeferTarget splits "Actor::Action" into its parts.
func SplitDeferTarget(target string) (actor, action string, ok bool) {
	actor, action, found := strings.Cut(target, "::")
	if !found || !keyPattern.MatchString(actor) || !keyPattern.MatchString(action) {
		return "", "", false
	}
	return actor, action, true
}

func probeNames(stage *ast.Stage) []string {
	names := make([]string, 0, len(stage.Probes))
	for _, p := range stage.Probes {
		names = append(names, p.Name)
	}
	return names
}
