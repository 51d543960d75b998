package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/triage/pkg/cli"
)

func TestLintCommand(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.yaml", "name: [unterminated\n")

	tests := []struct {
		name      string
		args      []string
		wantValid []bool
	}{
		{name: "example stages", args: []string{"lint", "--format", "json", exampleStages}, wantValid: []bool{true}},
		{name: "broken yaml", args: []string{"lint", "--format", "json", broken}, wantValid: []bool{false}},
		{name: "missing path", args: []string{"lint", "--format", "json", filepath.Join(dir, "missing")}, wantValid: []bool{false}},
		{name: "mixed", args: []string{"lint", "--format", "json", exampleStages, broken}, wantValid: []bool{true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)

			var reports []LintReport
			if jsonErr := json.Unmarshal([]byte(out), &reports); jsonErr != nil {
				t.Fatalf("output is not JSON: %v\n%s", jsonErr, out)
			}
			if len(reports) != len(tt.wantValid) {
				t.Fatalf("got %d reports, want %d", len(reports), len(tt.wantValid))
			}

			allValid := true
			for i, r := range reports {
				if r.Valid != tt.wantValid[i] {
					t.Errorf("report %s valid = %v, want %v (issues: %+v)", r.Path, r.Valid, tt.wantValid[i], r.Issues)
				}
				if !r.Valid && len(r.Issues) == 0 {
					t.Errorf("invalid report %s has no issues", r.Path)
				}
				allValid = allValid && r.Valid
			}

			if allValid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !allValid && !errors.Is(err, cli.ErrFindings) {
				t.Errorf("error = %v, want ErrFindings", err)
			}
		})
	}
}

func TestLintCommand_Text(t *testing.T) {
	out, err := execute(t, "lint", exampleStages)
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	if !strings.HasPrefix(out, "✓ "+exampleStages) || !strings.Contains(out, "verdict") {
		t.Errorf("text output = %q", out)
	}

	if _, err := execute(t, "lint", "--format", "csv", exampleStages); err == nil {
		t.Error("lint --format csv should fail")
	}
}
