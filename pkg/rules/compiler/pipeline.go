package compiler

import (
	"fmt"
	"sort"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

// checkPipeline runs the cross-stage checks on stages already sorted into
// execution order.
func checkPipeline(stages []*ast.Stage, errs *ruleErrors.ErrorList) {
	if len(stages) == 0 {
		errs.AddCoded(ruleErrors.ErrorTypeStructural, ruleErrors.CodeInvalidPipeline,
			"Pipeline has no stages", ast.Location{}, "")
		return
	}

	namespaces := make(map[string]ast.Location)
	claim := func(name string, loc ast.Location) {
		if first, ok := namespaces[name]; ok {
			errs.AddCoded(ruleErrors.ErrorTypeStructural, ruleErrors.CodeInvalidPipeline,
				fmt.Sprintf("Namespace %q is already used at %s", name, first), loc,
				"Stage and probe binding names must be unique across the pipeline")
			return
		}
		namespaces[name] = loc
	}

	var finals []*ast.Stage
	for _, s := range stages {
		claim(s.Name, s.Location)
		for _, p := range s.Probes {
			claim(p.Name, p.Location)
		}
		if s.IsFinalization() {
			finals = append(finals, s)
		}
	}

	switch {
	case len(finals) == 0:
		errs.AddCoded(ruleErrors.ErrorTypeStructural, ruleErrors.CodeInvalidPipeline,
			"Pipeline has no finalization stage", stages[len(stages)-1].Location,
			"Add a stage with 'kind: finalization'")
	case len(finals) > 1:
		for _, s := range finals[1:] {
			errs.AddCoded(ruleErrors.ErrorTypeStructural, ruleErrors.CodeInvalidPipeline,
				fmt.Sprintf("Stage %q is a second finalization stage (first is %q)", s.Name, finals[0].Name),
				s.Location, "")
		}
	case stages[len(stages)-1] != finals[0]:
		errs.AddCoded(ruleErrors.ErrorTypeStructural, ruleErrors.CodeInvalidPipeline,
			fmt.Sprintf("Finalization stage %q must be last in order", finals[0].Name),
			finals[0].Location, "Give it the highest 'order'")
	}

	// Sources must name a namespace produced by an earlier stage.
	produced := make(map[string]bool)
	for _, s := range stages {
		for _, src := range s.Sources {
			if !produced[src] {
				errs.AddCoded(ruleErrors.ErrorTypeSemantic, ruleErrors.CodeUndeclaredSource,
					fmt.Sprintf("Stage %q lists source %q which no earlier stage produces", s.Name, src),
					s.Location, ruleErrors.SuggestName(src, keys(produced)))
			}
		}
		produced[s.Name] = true
		for _, p := range s.Probes {
			produced[p.Name] = true
		}
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
