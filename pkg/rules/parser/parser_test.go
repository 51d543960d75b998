package parser

import (
	"errors"
	"strings"
	"testing"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

func TestParser_Parse_Example(t *testing.T) {
	stage, err := NewParser().Parse("../../../examples/stages/20-pdf.yaml")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if stage.Name != "pdf_analysis" {
		t.Errorf("Name = %q, want %q", stage.Name, "pdf_analysis")
	}
	if stage.Kind != ast.StageKindOrdinary {
		t.Errorf("Kind = %q, want %q", stage.Kind, ast.StageKindOrdinary)
	}
	if stage.Bounds.MaxReadBytes != 1048576 {
		t.Errorf("MaxReadBytes = %d, want 1048576", stage.Bounds.MaxReadBytes)
	}
	if stage.Bounds.FailMode != ast.FailSoft {
		t.Errorf("FailMode = %q, want %q", stage.Bounds.FailMode, ast.FailSoft)
	}

	if len(stage.Magic) != 1 {
		t.Fatalf("len(Magic) = %d, want 1", len(stage.Magic))
	}
	if got := string(stage.Magic[0].Bytes); got != "%PDF" {
		t.Errorf("Magic bytes = %q, want %q", got, "%PDF")
	}

	if len(stage.Probes) != 1 || !stage.Probes[0].Observe || stage.Probes[0].Kind != "pattern" {
		t.Errorf("Probes = %+v, want one observing pattern probe", stage.Probes)
	}

	rule := stage.GetRule("pdf-javascript")
	if rule == nil {
		t.Fatal("rule pdf-javascript not found")
	}
	if rule.Conditions.Type != ast.ConditionTypeAll || len(rule.Conditions.Children) != 2 {
		t.Fatalf("Conditions = %+v, want all with 2 children", rule.Conditions)
	}
	short := rule.Conditions.Children[1]
	if short.Field != "pdf.has_javascript" || short.Operator != ast.OperatorIs || short.Value.Value != true {
		t.Errorf("shorthand condition = %+v, want pdf.has_javascript is true", short)
	}
	if len(rule.Actions) != 3 {
		t.Fatalf("len(Actions) = %d, want 3", len(rule.Actions))
	}
	if delta, ok := rule.Actions[2].GetNumberParameter("delta"); !ok || delta != 0.5 {
		t.Errorf("score delta = %v (%v), want 0.5", delta, ok)
	}
}

func TestParser_ParseBytes_Locations(t *testing.T) {
	data := []byte(`name: s
order: 1
bounds: {max_read_bytes: 1, max_scan_bytes: 1, max_depth: 1, max_members: 1}
rules:
  - name: first
    when: flag
    then:
      - {type: tag, value: Seen}
`)
	stage, err := NewParser().ParseBytes(data, "memory://s")
	if err != nil {
		t.Fatalf("ParseBytes() failed: %v", err)
	}

	rule := stage.Rules[0]
	if rule.Location.Line != 5 {
		t.Errorf("rule line = %d, want 5", rule.Location.Line)
	}
	if rule.Conditions.Location.Line != 6 {
		t.Errorf("condition line = %d, want 6", rule.Conditions.Location.Line)
	}
	if rule.Actions[0].Location.Line != 8 {
		t.Errorf("action line = %d, want 8", rule.Actions[0].Location.Line)
	}
}

func TestParser_ParseBytes_Conditions(t *testing.T) {
	tests := []struct {
		name     string
		when     string
		wantType ast.ConditionType
		children int
	}{
		{"shorthand", "flag", ast.ConditionTypeSimple, 0},
		{"list is implicit all", "[a, b]", ast.ConditionTypeAll, 2},
		{"single item list unwraps", "[a]", ast.ConditionTypeSimple, 0},
		{"any", "{any: [a, b, c]}", ast.ConditionTypeAny, 3},
		{"not", "{not: a}", ast.ConditionTypeNot, 1},
		{"simple", "{field: context.size, operator: '>', value: 10}", ast.ConditionTypeSimple, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte("name: s\nrules:\n  - name: r\n    when: " + tt.when + "\n    then: [{type: tag, value: X}]\n")
			stage, err := NewParser().ParseBytes(data, "memory://s")
			if err != nil {
				t.Fatalf("ParseBytes() failed: %v", err)
			}
			cond := stage.Rules[0].Conditions
			if cond.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", cond.Type, tt.wantType)
			}
			if len(cond.Children) != tt.children {
				t.Errorf("len(Children) = %d, want %d", len(cond.Children), tt.children)
			}
		})
	}
}

func TestParser_ParseBytes_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType ruleErrors.ErrorType
		wantMsg  string
	}{
		{
			name:     "yaml syntax",
			data:     "name: s\nrules: [\n",
			wantType: ruleErrors.ErrorTypeSyntax,
			wantMsg:  "YAML parsing failed",
		},
		{
			name:     "missing name",
			data:     "order: 1\n",
			wantType: ruleErrors.ErrorTypeStructural,
			wantMsg:  "Stage name is required",
		},
		{
			name:     "unknown kind",
			data:     "name: s\nkind: terminal\n",
			wantType: ruleErrors.ErrorTypeStructural,
			wantMsg:  "Unknown stage kind",
		},
		{
			name:     "bad magic hex",
			data:     "name: s\nmagic: [{signal: m, bytes: 'ZZ'}]\n",
			wantType: ruleErrors.ErrorTypeStructural,
			wantMsg:  "invalid bytes",
		},
		{
			name:     "action without type",
			data:     "name: s\nrules: [{name: r, then: [{value: X}]}]\n",
			wantType: ruleErrors.ErrorTypeStructural,
			wantMsg:  "missing 'type'",
		},
		{
			name:     "rule without name",
			data:     "name: s\nrules: [{then: [{type: tag, value: X}]}]\n",
			wantType: ruleErrors.ErrorTypeStructural,
			wantMsg:  "has no name",
		},
		{
			name:     "not with two children",
			data:     "name: s\nrules: [{name: r, when: {not: [a, b]}, then: [{type: tag, value: X}]}]\n",
			wantType: ruleErrors.ErrorTypeStructural,
			wantMsg:  "exactly one condition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().ParseBytes([]byte(tt.data), "memory://s")
			if err == nil {
				t.Fatal("ParseBytes() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want message containing %q", err, tt.wantMsg)
			}

			var single *ruleErrors.Error
			var list *ruleErrors.ErrorList
			switch {
			case errors.As(err, &list):
				if !list.HasErrorType(tt.wantType) {
					t.Errorf("error list has no %q error: %v", tt.wantType, err)
				}
			case errors.As(err, &single):
				if single.Type != tt.wantType {
					t.Errorf("error type = %q, want %q", single.Type, tt.wantType)
				}
			default:
				t.Errorf("error %T is not a compilation error", err)
			}
		})
	}
}

func TestParser_MaxDepth(t *testing.T) {
	data := []byte("name: s\nrules:\n  - name: r\n    when: {all: [{any: [{not: a}]}]}\n    then: [{type: tag, value: X}]\n")

	if _, err := NewParser().ParseBytes(data, "memory://s"); err != nil {
		t.Fatalf("default depth rejected nested condition: %v", err)
	}
	if _, err := NewParser().WithMaxDepth(2).ParseBytes(data, "memory://s"); err == nil {
		t.Error("WithMaxDepth(2) accepted a condition nested 3 deep")
	}
}

func TestParser_MaxFileSize(t *testing.T) {
	_, err := NewParser().WithMaxFileSize(4).ParseBytes([]byte("name: stage\n"), "memory://s")
	var single *ruleErrors.Error
	if !errors.As(err, &single) || single.Type != ruleErrors.ErrorTypeIO {
		t.Errorf("error = %v, want io error", err)
	}
}

func TestParser_ParseAll_AccumulatesErrors(t *testing.T) {
	_, err := NewParser().ParseAll([]string{
		"../../../examples/stages/10-ingest.yaml",
		"testdata/does-not-exist.yaml",
		"testdata/also-missing.yaml",
	})
	var list *ruleErrors.ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("error = %v, want *ErrorList", err)
	}
	if list.Count() != 2 {
		t.Errorf("Count() = %d, want 2", list.Count())
	}
}
