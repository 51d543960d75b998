package compiler

import (
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
	"mercator-hq/triage/pkg/rules/parser"
)

const bounds = `
bounds:
  max_read_bytes: 1024
  max_scan_bytes: 1024
  max_depth: 2
  max_members: 8
`

const finalStage = `name: verdict
kind: finalization
order: 99
` + bounds + `
outcomes:
  - {name: Clean, severity: info}
  - {name: Suspicious, severity: medium}
otherwise: Clean
`

func mustParse(t *testing.T, src string) *ast.Stage {
	t.Helper()
	stage, err := parser.NewParser().ParseBytes([]byte(src), "memory://test")
	if err != nil {
		t.Fatalf("ParseBytes() failed: %v", err)
	}
	return stage
}

func TestCompile_Examples(t *testing.T) {
	paths := []string{
		"../../../examples/stages/90-verdict.yaml",
		"../../../examples/stages/30-archive.yaml",
		"../../../examples/stages/10-ingest.yaml",
		"../../../examples/stages/20-pdf.yaml",
	}
	stages, err := parser.NewParser().ParseAll(paths)
	if err != nil {
		t.Fatalf("ParseAll() failed: %v", err)
	}

	pipeline, err := NewCompiler().Compile(stages)
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	want := []string{"ingest", "pdf_analysis", "archive_analysis", "verdict"}
	if diff := cmp.Diff(want, pipeline.Names()); diff != "" {
		t.Errorf("stage order mismatch (-want +got):\n%s", diff)
	}
	if pipeline.Final().Name != "verdict" {
		t.Errorf("Final() = %q, want verdict", pipeline.Final().Name)
	}
	if !pipeline.Stage("pdf_analysis").CanRead("pdf") {
		t.Error("pdf_analysis cannot read its own probe namespace")
	}
}

func TestCompileStage_Codes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ruleErrors.Code
	}{
		{
			name: "missing fallback",
			src:  strings.Replace(finalStage, "otherwise: Clean\n", "", 1),
			code: ruleErrors.CodeMissingFallback,
		},
		{
			name: "unknown fallback",
			src:  strings.Replace(finalStage, "otherwise: Clean", "otherwise: Benign", 1),
			code: ruleErrors.CodeUnknownOutcome,
		},
		{
			name: "missing bound",
			src:  "name: s\nbounds: {max_read_bytes: 1, max_scan_bytes: 1, max_depth: 1}\n",
			code: ruleErrors.CodeUnboundedCeiling,
		},
		{
			name: "zero bound",
			src:  "name: s\nbounds: {max_read_bytes: 0, max_scan_bytes: 1, max_depth: 1, max_members: 1}\n",
			code: ruleErrors.CodeUnboundedCeiling,
		},
		{
			name: "hard fail mode",
			src:  "name: s\nbounds: {max_read_bytes: 1, max_scan_bytes: 1, max_depth: 1, max_members: 1, fail_mode: hard}\n",
			code: ruleErrors.CodeUnsupportedFailMode,
		},
		{
			name: "duplicate signal across rules",
			src: "name: s\n" + bounds + `
rules:
  - {name: a, when: x, then: [{type: signal, key: flag}]}
  - {name: b, when: y, then: [{type: signal, key: flag, value: false}]}
`,
			code: ruleErrors.CodeDuplicateSignal,
		},
		{
			name: "duplicate signal between magic and classify",
			src: "name: s\n" + bounds + `
magic: [{signal: m, bytes: "00"}]
classify: [{observed: m, then: [{type: signal, key: m}]}]
`,
			code: ruleErrors.CodeDuplicateSignal,
		},
		{
			name: "outcome outside finalization",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: x, then: [{type: set_outcome, outcome: Clean}]}]\n",
			code: ruleErrors.CodeOutcomeNotPermitted,
		},
		{
			name: "outcome read outside finalization",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: {field: outcome, operator: '==', value: Clean}, then: [{type: tag, value: X}]}]\n",
			code: ruleErrors.CodeOutcomeNotPermitted,
		},
		{
			name: "unknown outcome",
			src:  finalStage + "rules: [{name: r, when: x, then: [{type: promote_outcome, outcome: Evil}]}]\n",
			code: ruleErrors.CodeUnknownOutcome,
		},
		{
			name: "unknown probe",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: x, then: [{type: run, probe: zip}]}]\n",
			code: ruleErrors.CodeUnknownProbe,
		},
		{
			name: "probe cycle",
			src: "name: s\n" + bounds + `
probes:
  - {name: a, kind: k, observe: true, after: [b]}
  - {name: b, kind: k, observe: true, after: [a]}
`,
			code: ruleErrors.CodeProbeCycle,
		},
		{
			name: "undeclared source",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: other.flag, then: [{type: tag, value: X}]}]\n",
			code: ruleErrors.CodeUndeclaredSource,
		},
		{
			name: "negative score",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: x, then: [{type: score, delta: -0.1}]}]\n",
			code: ruleErrors.CodeInvalidAction,
		},
		{
			name: "malformed defer target",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: x, then: [{type: defer, target: Sandbox}]}]\n",
			code: ruleErrors.CodeInvalidAction,
		},
		{
			name: "signal outside declared bounds",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: x, then: [{type: signal, key: n, value: 11, min: 0, max: 10}]}]\n",
			code: ruleErrors.CodeInvalidAction,
		},
		{
			name: "ordering against string",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: {field: context.size, operator: '>', value: big}, then: [{type: tag, value: X}]}]\n",
			code: ruleErrors.CodeInvalidCondition,
		},
		{
			name: "unknown context field",
			src:  "name: s\n" + bounds + "rules: [{name: r, when: context.mtime, then: [{type: tag, value: X}]}]\n",
			code: ruleErrors.CodeInvalidCondition,
		},
		{
			name: "run in classifier",
			src: "name: s\n" + bounds + `
probes: [{name: p, kind: k}]
classify: [{observed: x, then: [{type: run, probe: p}]}]
`,
			code: ruleErrors.CodeInvalidAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompiler().CompileStage(mustParse(t, tt.src))
			if err == nil {
				t.Fatal("CompileStage() succeeded, want error")
			}
			if !ruleErrors.HasCode(err, tt.code) {
				t.Errorf("error does not carry %s:\n%v", tt.code, err)
			}
			if !IsCompilationError(err) {
				t.Errorf("IsCompilationError(%T) = false", err)
			}
		})
	}
}

func TestCompile_PipelineChecks(t *testing.T) {
	ordinary := func(name string, order int, extra string) string {
		return "name: " + name + "\norder: " + strconv.Itoa(order) + "\n" + bounds + extra
	}

	tests := []struct {
		name    string
		sources []string
		wantMsg string
	}{
		{
			name:    "no finalization",
			sources: []string{ordinary("a", 1, "")},
			wantMsg: "no finalization stage",
		},
		{
			name:    "finalization not last",
			sources: []string{ordinary("a", 100, ""), finalStage},
			wantMsg: "must be last",
		},
		{
			name:    "duplicate stage names",
			sources: []string{ordinary("a", 1, ""), ordinary("a", 2, ""), finalStage},
			wantMsg: "already used",
		},
		{
			name:    "probe binding shadows a stage",
			sources: []string{ordinary("a", 1, ""), ordinary("b", 2, "probes: [{name: a, kind: k}]\n"), finalStage},
			wantMsg: "already used",
		},
		{
			name:    "source from a later stage",
			sources: []string{ordinary("a", 1, "sources: [b]\n"), ordinary("b", 2, ""), finalStage},
			wantMsg: "no earlier stage produces",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages := make([]*ast.Stage, 0, len(tt.sources))
			for _, src := range tt.sources {
				stages = append(stages, mustParse(t, src))
			}
			_, err := NewCompiler().Compile(stages)
			if err == nil {
				t.Fatal("Compile() succeeded, want error")
			}
			if !ruleErrors.HasCode(err, ruleErrors.CodeInvalidPipeline) && !ruleErrors.HasCode(err, ruleErrors.CodeUndeclaredSource) {
				t.Errorf("error has neither InvalidPipeline nor UndeclaredSource: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestPlanWaves(t *testing.T) {
	bind := func(name string, observe bool, after ...string) *ast.ProbeBinding {
		return &ast.ProbeBinding{Name: name, Kind: "k", Observe: observe, After: after}
	}

	bindings := []*ast.ProbeBinding{
		bind("header", true),
		bind("objects", true, "header"),
		bind("streams", true, "objects", "header"),
		bind("fonts", true, "header"),
		bind("manual", false),
		bind("meta", true),
	}

	waves, err := PlanWaves(bindings)
	if err != nil {
		t.Fatalf("PlanWaves() failed: %v", err)
	}

	got := make([][]string, len(waves))
	for i, wave := range waves {
		for _, b := range wave {
			got[i] = append(got[i], b.Name)
		}
	}
	want := [][]string{
		{"header", "meta"},
		{"objects", "fonts"},
		{"streams"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("waves mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanWaves_DependsOnNonObserveProbe(t *testing.T) {
	_, err := PlanWaves([]*ast.ProbeBinding{
		{Name: "manual", Kind: "k"},
		{Name: "auto", Kind: "k", Observe: true, After: []string{"manual"}},
	})
	if err == nil || err.Code != ruleErrors.CodeUnknownProbe {
		t.Errorf("PlanWaves() error = %v, want UnknownProbe", err)
	}
}

func TestSplitDeferTarget(t *testing.T) {
	tests := []struct {
		target, actor, action string
		ok                    bool
	}{
		{"Sandbox::Detonate", "Sandbox", "Detonate", true},
		{"Analyst::Review", "Analyst", "Review", true},
		{"Sandbox", "", "", false},
		{"::Detonate", "", "", false},
		{"Sandbox::", "", "", false},
		{"Sand box::Run", "", "", false},
	}
	for _, tt := range tests {
		actor, action, ok := SplitDeferTarget(tt.target)
		if actor != tt.actor || action != tt.action || ok != tt.ok {
			t.Errorf("SplitDeferTarget(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.target, actor, action, ok, tt.actor, tt.action, tt.ok)
		}
	}
}
