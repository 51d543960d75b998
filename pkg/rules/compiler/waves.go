package compiler

import (
	"fmt"
	"strings"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

// PlanWaves groups the observation probes into dependency waves using their
// explicit 'after' declarations. A binding lands in the first wave after all
// of its dependencies; order within a wave follows declaration order, so the
// plan is deterministic.
func PlanWaves(bindings []*ast.ProbeBinding) ([][]*ast.ProbeBinding, *ruleErrors.Error) {
	observe := make(map[string]*ast.ProbeBinding)
	var pending []*ast.ProbeBinding
	for _, b := range bindings {
		if b.Observe {
			observe[b.Name] = b
			pending = append(pending, b)
		}
	}

	for _, b := range pending {
		for _, dep := range b.After {
			if _, ok := observe[dep]; !ok {
				return nil, &ruleErrors.Error{
					Type:       ruleErrors.ErrorTypeSemantic,
					Code:       ruleErrors.CodeUnknownProbe,
					Message:    fmt.Sprintf("Probe %q runs after %q, which is not an observation probe of this stage", b.Name, dep),
					Location:   b.Location,
					Suggestion: ruleErrors.SuggestName(dep, probeNames(&ast.Stage{Probes: pending})),
				}
			}
		}
	}

	done := make(map[string]bool, len(pending))
	var waves [][]*ast.ProbeBinding
	for len(pending) > 0 {
		var wave, rest []*ast.ProbeBinding
		for _, b := range pending {
			if depsDone(b, done) {
				wave = append(wave, b)
			} else {
				rest = append(rest, b)
			}
		}
		if len(wave) == 0 {
			names := make([]string, len(rest))
			for i, b := range rest {
				names[i] = b.Name
			}
			return nil, &ruleErrors.Error{
				Type:       ruleErrors.ErrorTypeSemantic,
				Code:       ruleErrors.CodeProbeCycle,
				Message:    fmt.Sprintf("Probe dependency cycle among %s", strings.Join(names, ", ")),
				Location:   rest[0].Location,
				Suggestion: "Remove one of the 'after' declarations",
			}
		}
		for _, b := range wave {
			done[b.Name] = true
		}
		waves = append(waves, wave)
		pending = rest
	}
	return waves, nil
}

func depsDone(b *ast.ProbeBinding, done map[string]bool) bool {
	for _, dep := range b.After {
		if !done[dep] {
			return false
		}
	}
	return true
}
