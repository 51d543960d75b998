package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/rules/ast"
	"mercator-hq/triage/pkg/rules/compiler"
)

// apply executes one action of a firing rule. Rejections are recorded as
// diagnostics; they never stop the run.
func (sx *stageRun) apply(ctx context.Context, rule string, action *ast.Action) *ActionResult {
	result := &ActionResult{ActionType: string(action.Type)}
	store := sx.r.store
	prov := sx.prov(rule)

	switch action.Type {
	case ast.ActionTypeSignal:
		value := facts.Bool(true)
		if node := action.GetParameter("value"); node != nil {
			v, err := facts.FromInterface(node.Value)
			if err != nil {
				result.Error = err
				break
			}
			value = v
		}
		changed, err := sx.putSignal(ctx, sx.stage.Name, action.GetStringParameter("key"), value, rule)
		result.Changed, result.Error = changed, err

	case ast.ActionTypeTag:
		set := action.GetStringParameter("set")
		if set == "" {
			set = DefaultTagSet
		}
		result.Changed = store.AppendTag(sx.stage.Name, set, action.GetStringParameter("value"), prov)

	case ast.ActionTypeRiskHint:
		result.Changed = store.AppendRiskHint(action.GetStringParameter("value"), prov)

	case ast.ActionTypeScore:
		delta, _ := action.GetNumberParameter("delta")
		before := store.Score()
		after, err := store.AdjustScore(delta, prov)
		result.Changed, result.Error = after != before, err

	case ast.ActionTypeRun:
		result.Changed = sx.runProbe(ctx, action.GetStringParameter("probe"))

	case ast.ActionTypeEmit:
		emission := Emission{
			Kind:  action.GetStringParameter("kind"),
			Stage: sx.stage.Name,
			Rule:  rule,
		}
		for _, field := range action.GetStringListParameter("with") {
			if field = strings.TrimSpace(field); field != "" {
				emission.Facts = append(emission.Facts, sx.eval.Emitted(field))
			}
		}
		sx.r.emissions = append(sx.r.emissions, emission)
		result.Changed = true

	case ast.ActionTypeDefer:
		actor, act, ok := compiler.SplitDeferTarget(action.GetStringParameter("target"))
		if !ok {
			result.Error = fmt.Errorf("malformed deferred target %q", action.GetStringParameter("target"))
			break
		}
		sx.r.deferred = append(sx.r.deferred, DeferredRequest{
			Actor:  actor,
			Action: act,
			Stage:  sx.stage.Name,
			Rule:   rule,
		})
		result.Changed = true

	case ast.ActionTypeSetOutcome:
		o := outcomeFor(sx.stage, action.GetStringParameter("outcome"))
		result.Error = store.SetOutcome(o, prov)
		result.Changed = result.Error == nil

	case ast.ActionTypePromoteOutcome:
		o := outcomeFor(sx.stage, action.GetStringParameter("outcome"))
		result.Changed, result.Error = store.PromoteOutcome(o, prov)

	default:
		result.Error = fmt.Errorf("unknown action type %q", action.Type)
	}

	details := fmt.Sprintf("changed=%t", result.Changed)
	if result.Error != nil {
		details = result.Error.Error()
		if !errors.Is(result.Error, facts.ErrDuplicateSignal) {
			err := &ActionError{Stage: sx.stage.Name, Rule: rule, ActionType: string(action.Type), Cause: result.Error}
			sx.r.diagnose(DiagActionFailed, sx.stage.Name, rule, "%v", err)
			sx.e.logger.WarnContext(ctx, "action rejected", "rule", rule, "action", action.Type, "error", result.Error)
		}
	}
	sx.r.addTraceStep("action_exec", sx.stage.Name, rule, string(action.Type)+": "+details, 0)
	return result
}

// putSignal writes a signal. During classification writing the value a
// signal already holds is allowed; otherwise signals are write-once and a
// second write is rejected with a diagnostic.
func (sx *stageRun) putSignal(ctx context.Context, namespace, key string, value facts.Value, rule string) (bool, error) {
	store := sx.r.store
	prov := sx.prov(rule)

	var (
		changed = true
		err     error
	)
	if sx.phase == facts.PhaseClassification {
		changed, err = store.EnsureSignal(namespace, key, value, prov)
	} else {
		err = store.PutSignal(namespace, key, value, prov)
	}
	if err == nil {
		return changed, nil
	}

	var dup *facts.DuplicateSignalError
	if errors.As(err, &dup) {
		sx.e.metrics.RecordSignalRejected(sx.stage.Name)
		sx.r.diagnose(DiagDuplicateSignal, sx.stage.Name, rule,
			"%s.%s already holds %s (from %s), rejected %s", namespace, key, dup.Existing.Value, dup.Existing.Provenance, value)
		sx.e.logger.InfoContext(ctx, "duplicate signal rejected", "rule", rule, "namespace", namespace, "key", key)
	}
	return false, err
}
