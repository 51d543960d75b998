package engine

import (
	"slices"

	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/rules/ast"
	"mercator-hq/triage/pkg/rules/compiler"
)

// Truth is the tri-state result of a condition.
type Truth uint8

const (
	// Unknown means a fact the condition depends on was never produced.
	Unknown Truth = iota
	False
	True
)

// String returns "unknown", "false" or "true".
func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Not negates t. Unknown stays Unknown.
func (t Truth) Not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

func truth(b bool) Truth {
	if b {
		return True
	}
	return False
}

// Evaluator evaluates conditions for one stage against the run record.
// It never consumes budget and never writes.
type Evaluator struct {
	store *facts.Store
	ctx   *facts.Context
	stage *compiler.Stage
}

// NewEvaluator creates an evaluator reading store and ctx on behalf of stage.
// Bare keys resolve in the stage's own namespace.
func NewEvaluator(store *facts.Store, ctx *facts.Context, stage *compiler.Stage) *Evaluator {
	return &Evaluator{store: store, ctx: ctx, stage: stage}
}

// operand is a resolved field reference.
type operand struct {
	known bool
	value facts.Value
	isSet bool
	set   []string
}

// Eval evaluates cond. A nil condition is True.
func (ev *Evaluator) Eval(cond *ast.ConditionNode) Truth {
	if cond == nil {
		return True
	}

	switch cond.Type {
	case ast.ConditionTypeSimple:
		return ev.evalSimple(cond)

	case ast.ConditionTypeAll:
		result := True
		for _, child := range cond.Children {
			switch ev.Eval(child) {
			case False:
				return False
			case Unknown:
				result = Unknown
			}
		}
		return result

	case ast.ConditionTypeAny:
		result := False
		for _, child := range cond.Children {
			switch ev.Eval(child) {
			case True:
				return True
			case Unknown:
				result = Unknown
			}
		}
		return result

	case ast.ConditionTypeNot:
		if len(cond.Children) != 1 {
			return Unknown
		}
		return ev.Eval(cond.Children[0]).Not()

	default:
		return Unknown
	}
}

func (ev *Evaluator) evalSimple(cond *ast.ConditionNode) Truth {
	ref, ok := ast.ParseReference(cond.Field)
	if !ok {
		return Unknown
	}
	op := ev.resolve(ref)

	switch cond.Operator {
	case ast.OperatorIsSome:
		return truth(op.known)
	case ast.OperatorIsNone:
		return truth(!op.known)
	}

	if !op.known {
		return Unknown
	}
	if cond.Value.IsNull() {
		return False
	}

	if op.isSet {
		member, ok := cond.Value.Value.(string)
		if !ok {
			return False
		}
		in := slices.Contains(op.set, member)
		switch cond.Operator {
		case ast.OperatorContains, ast.OperatorIs, ast.OperatorEqual:
			return truth(in)
		case ast.OperatorNotEqual:
			return truth(!in)
		default:
			return False
		}
	}

	want, err := facts.FromInterface(cond.Value.Value)
	if err != nil {
		return False
	}

	switch cond.Operator {
	case ast.OperatorIs, ast.OperatorEqual, ast.OperatorContains:
		return truth(op.value == want)
	case ast.OperatorNotEqual:
		return truth(op.value != want)
	}

	got, ok := op.value.AsNumber()
	if !ok {
		return False
	}
	limit, ok := want.AsNumber()
	if !ok {
		return False
	}
	switch cond.Operator {
	case ast.OperatorLessThan:
		return truth(got < limit)
	case ast.OperatorLessEqual:
		return truth(got <= limit)
	case ast.OperatorGreaterThan:
		return truth(got > limit)
	case ast.OperatorGreaterEqual:
		return truth(got >= limit)
	default:
		return False
	}
}

// resolve looks up the current value of a reference.
func (ev *Evaluator) resolve(ref ast.Reference) operand {
	switch ref.Kind {
	case ast.RefContext:
		v, ok := ev.ctx.Lookup(ref.Key)
		return operand{known: ok, value: v}

	case ast.RefScore:
		return operand{known: true, value: facts.Number(ev.store.Score())}

	case ast.RefRiskHints:
		return operand{known: true, isSet: true, set: ev.store.RiskHints()}

	case ast.RefOutcome, ast.RefOutcomeSeverity:
		o, _, ok := ev.store.Outcome()
		if !ok {
			return operand{}
		}
		if ref.Kind == ast.RefOutcome {
			return operand{known: true, value: facts.Label(o.Name)}
		}
		return operand{known: true, value: facts.Label(o.Severity)}

	case ast.RefFact:
		ns := ref.Namespace
		if ns == "" {
			ns = ev.stage.Name
		}
		if f, ok := ev.store.Get(ns, ref.Key); ok {
			return operand{known: true, value: f.Value}
		}
		if members, ok := ev.store.Tags(ns, ref.Key); ok {
			return operand{known: true, isSet: true, set: members}
		}
	}
	return operand{}
}

// Present reports whether field holds an observation: a signal other than
// false, or a non-empty set.
func (ev *Evaluator) Present(field string) bool {
	ref, ok := ast.ParseReference(field)
	if !ok {
		return false
	}
	op := ev.resolve(ref)
	switch {
	case !op.known:
		return false
	case op.isSet:
		return len(op.set) > 0
	default:
		b, isBool := op.value.AsBool()
		return !isBool || b
	}
}

// Emitted resolves field for an emission payload.
func (ev *Evaluator) Emitted(field string) EmittedFact {
	out := EmittedFact{Field: field}
	ref, ok := ast.ParseReference(field)
	if !ok {
		return out
	}
	op := ev.resolve(ref)
	switch {
	case !op.known:
	case op.isSet:
		out.Members = append([]string{}, op.set...)
	default:
		v := op.value
		out.Value = &v
	}
	return out
}
