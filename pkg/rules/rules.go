package rules

import (
	"sort"

	"mercator-hq/triage/pkg/rules/ast"
	"mercator-hq/triage/pkg/rules/compiler"
	"mercator-hq/triage/pkg/rules/parser"
)

// LoadPipeline parses and compiles a set of stage files into a pipeline.
// Errors from every file are reported together.
func LoadPipeline(paths []string) (*compiler.Pipeline, error) {
	stages, err := parser.NewParser().ParseAll(paths)
	if err != nil {
		return nil, err
	}
	return compiler.NewCompiler().Compile(stages)
}

// CompilePipeline compiles already-parsed stages.
func CompilePipeline(stages []*ast.Stage) (*compiler.Pipeline, error) {
	return compiler.NewCompiler().Compile(stages)
}

// ParseBytes parses a stage from YAML held in memory without compiling it.
func ParseBytes(data []byte, sourcePath string) (*ast.Stage, error) {
	return parser.NewParser().ParseBytes(data, sourcePath)
}

// LoadPipelineBytes parses and compiles stages held in memory, keyed by
// source name. Stages are ordered by their declared order, not by key.
func LoadPipelineBytes(sources map[string][]byte) (*compiler.Pipeline, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	p := parser.NewParser()
	stages := make([]*ast.Stage, 0, len(sources))
	for _, name := range names {
		stage, err := p.ParseBytes(sources[name], name)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return compiler.NewCompiler().Compile(stages)
}
