package parser

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

// Parser parses stage definition files into Abstract Syntax Trees.
// It handles YAML parsing, AST construction, and structural checks.
// Semantic checks (references, bounds, fallback) belong to the compiler.
type Parser struct {
	maxFileSize int64 // Maximum file size in bytes (default: 1MB)
	maxDepth    int   // Maximum condition nesting depth (default: 10)
}

// NewParser creates a new parser with default configuration.
func NewParser() *Parser {
	return &Parser{
		maxFileSize: 1 << 20,
		maxDepth:    10,
	}
}

// WithMaxFileSize sets the maximum file size limit.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// WithMaxDepth sets the maximum condition nesting depth.
func (p *Parser) WithMaxDepth(depth int) *Parser {
	p.maxDepth = depth
	return p
}

// Parse parses a stage file at the given path and returns the AST.
func (p *Parser) Parse(path string) (*ast.Stage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ruleErrors.Error{
			Type:     ruleErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("Failed to access file: %v", err),
			Location: ast.Location{File: path},
		}
	}
	if info.Size() > p.maxFileSize {
		return nil, &ruleErrors.Error{
			Type:     ruleErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("File size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize),
			Location: ast.Location{File: path},
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ruleErrors.Error{
			Type:     ruleErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("Failed to read file: %v", err),
			Location: ast.Location{File: path},
		}
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses stage YAML from a byte slice.
// sourcePath is used only for error locations.
func (p *Parser) ParseBytes(data []byte, sourcePath string) (*ast.Stage, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, &ruleErrors.Error{
			Type:     ruleErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("Data size %d exceeds maximum %d bytes", len(data), p.maxFileSize),
			Location: ast.Location{File: sourcePath},
		}
	}

	ys, err := parseYAMLBytes(data)
	if err != nil {
		synErr := &ruleErrors.Error{
			Type:       ruleErrors.ErrorTypeSyntax,
			Message:    fmt.Sprintf("YAML parsing failed: %v", err),
			Location:   ast.Location{File: sourcePath, Line: yamlErrorLine(err), Column: 1},
			Suggestion: "Check YAML syntax (indentation, colons, quotes)",
		}
		synErr.Context = ruleErrors.ExtractContext(data, synErr.Location, 2)
		return nil, synErr
	}

	stage, err := newBuilder(sourcePath, p.maxDepth).buildStage(ys)
	if err != nil {
		var list *ruleErrors.ErrorList
		if errors.As(err, &list) {
			list.WithSource(data)
		}
		return nil, err
	}
	return stage, nil
}

// ParseAll parses every path, accumulating errors across files.
// Stages are returned in the order of paths.
func (p *Parser) ParseAll(paths []string) ([]*ast.Stage, error) {
	all := ruleErrors.NewErrorList()
	stages := make([]*ast.Stage, 0, len(paths))

	for _, path := range paths {
		stage, err := p.Parse(path)
		if err != nil {
			var list *ruleErrors.ErrorList
			var single *ruleErrors.Error
			switch {
			case errors.As(err, &list):
				all.Merge(list)
			case errors.As(err, &single):
				all.Add(single)
			default:
				all.AddError(ruleErrors.ErrorTypeIO, err.Error(), ast.Location{File: path})
			}
			continue
		}
		stages = append(stages, stage)
	}

	if all.HasErrors() {
		return nil, all
	}
	return stages, nil
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// yamlErrorLine extracts the line number from a yaml.v3 error message.
func yamlErrorLine(err error) int {
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
		if line, convErr := strconv.Atoi(m[1]); convErr == nil && line > 0 {
			return line
		}
	}
	return 1
}
