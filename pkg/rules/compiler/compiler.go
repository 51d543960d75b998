package compiler

import (
	"errors"
	"sort"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

// Stage is a compiled, immutable stage definition.
type Stage struct {
	*ast.Stage

	// Waves are the observation probes grouped so that every binding only
	// depends on bindings of earlier waves. Order within a wave is declared order.
	Waves [][]*ast.ProbeBinding

	// Signals maps every signal key the stage declares to its first declaration.
	Signals map[string]ast.Location

	readable map[string]bool
}

// CanRead reports whether the stage may read facts from namespace.
func (s *Stage) CanRead(namespace string) bool {
	return s.readable[namespace]
}

// Namespaces returns the sorted namespaces the stage may read.
func (s *Stage) Namespaces() []string {
	names := make([]string, 0, len(s.readable))
	for ns := range s.readable {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Pipeline is an ordered, compiled set of stages ending in exactly one
// finalization stage.
type Pipeline struct {
	Stages []*Stage
}

// Final returns the finalization stage.
func (p *Pipeline) Final() *Stage {
	if len(p.Stages) == 0 {
		return nil
	}
	return p.Stages[len(p.Stages)-1]
}

// Stage returns the compiled stage with the given name, or nil.
func (p *Pipeline) Stage(name string) *Stage {
	for _, s := range p.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

// Compiler runs every compilation pass over stage ASTs.
// Compilation errors are fatal at load time and never surface during a run.
type Compiler struct {
	structural *structuralPass
	semantic   *semanticPass
	actions    *actionPass
}

// NewCompiler creates a compiler with all passes.
func NewCompiler() *Compiler {
	return &Compiler{
		structural: &structuralPass{},
		semantic:   &semanticPass{},
		actions:    &actionPass{},
	}
}

// CompileStage checks a single stage in isolation.
// Cross-stage checks (sources, unique names) are done by Compile.
func (c *Compiler) CompileStage(stage *ast.Stage) (*Stage, error) {
	errs := ruleErrors.NewErrorList()
	compiled := c.compileStage(stage, errs)
	if errs.HasErrors() {
		return nil, errs
	}
	return compiled, nil
}

// Compile checks every stage and the pipeline as a whole. Stages are
// ordered by their declared order, then by name.
//
// # Checks
//
// Each stage goes through the structural, semantic and action passes.
// The pipeline must then hold exactly one finalization stage, ordered
// last, with an otherwise outcome; every source a stage names must run
// before it. Probe bindings are planned into waves from their after
// declarations.
//
// # Errors
//
// All problems are collected before returning. The error is an
// *errors.ErrorList whose entries carry a code, a location and, where one
// exists, a suggestion.
//
// Example:
//
//	stages, err := parser.NewParser().ParseAll(paths)
//	if err != nil {
//	    return err
//	}
//	pipeline, err := compiler.NewCompiler().Compile(stages)
//	if err != nil {
//	    var list *errors.ErrorList
//	    if stderrors.As(err, &list) {
//	        for _, e := range list.Errors {
//	            fmt.Println(e)
//	        }
//	    }
//	    return err
//	}
func (c *Compiler) Compile(stages []*ast.Stage) (*Pipeline, error) {
	errs := ruleErrors.NewErrorList()

	ordered := make([]*ast.Stage, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].Name < ordered[j].Name
	})

	pipeline := &Pipeline{Stages: make([]*Stage, 0, len(ordered))}
	for _, stage := range ordered {
		if compiled := c.compileStage(stage, errs); compiled != nil {
			pipeline.Stages = append(pipeline.Stages, compiled)
		}
	}

	checkPipeline(ordered, errs)

	if errs.HasErrors() {
		return nil, errs
	}
	return pipeline, nil
}

func (c *Compiler) compileStage(stage *ast.Stage, errs *ruleErrors.ErrorList) *Stage {
	local := ruleErrors.NewErrorList()

	local.Merge(c.structural.check(stage))

	// Later passes assume a structurally sound stage; skipping them avoids
	// cascading errors.
	var compiled *Stage
	if !local.HasErrorType(ruleErrors.ErrorTypeStructural) {
		compiled = &Stage{
			Stage:    stage,
			Signals:  make(map[string]ast.Location),
			readable: readableNamespaces(stage),
		}
		local.Merge(c.actions.check(compiled))
		local.Merge(c.semantic.check(compiled))
	}

	errs.Merge(local)
	if local.HasErrors() {
		return nil
	}
	return compiled
}

func readableNamespaces(stage *ast.Stage) map[string]bool {
	readable := map[string]bool{stage.Name: true}
	for _, src := range stage.Sources {
		readable[src] = true
	}
	for _, p := range stage.Probes {
		readable[p.Name] = true
	}
	return readable
}

// IsCompilationError reports whether err came out of the compiler or parser.
func IsCompilationError(err error) bool {
	var list *ruleErrors.ErrorList
	var single *ruleErrors.Error
	return errors.As(err, &list) || errors.As(err, &single)
}
