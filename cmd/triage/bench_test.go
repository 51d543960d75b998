package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/triage/pkg/engine"
	"mercator-hq/triage/pkg/facts"
)

func TestSummarize(t *testing.T) {
	results := make([]*engine.Result, 100)
	for i := range results {
		results[i] = &engine.Result{
			Outcome:  facts.Outcome{Name: "Clean"},
			Duration: time.Duration(i+1) * time.Millisecond,
		}
	}

	r := summarize(results, 2*time.Second)

	if r.Iterations != 100 || r.Digests != 1 || r.Outcome != "Clean" {
		t.Errorf("report = %+v", r)
	}
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"min", r.Min, time.Millisecond},
		{"max", r.Max, 100 * time.Millisecond},
		{"median", r.Median, 51 * time.Millisecond},
		{"p95", r.P95, 96 * time.Millisecond},
		{"p99", r.P99, 100 * time.Millisecond},
		{"mean", r.Mean, 50500 * time.Microsecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if r.Throughput != 50 {
		t.Errorf("throughput = %v, want 50", r.Throughput)
	}

	results[3].Score = 10
	if got := summarize(results, time.Second).Digests; got != 2 {
		t.Errorf("distinct digests = %d, want 2", got)
	}
}

func TestBenchCommand(t *testing.T) {
	empty := writeFile(t, t.TempDir(), "empty.bin", "")

	out, err := execute(t, "bench", "--stages", exampleStages, "--iterations", "20", "--workers", "4", "--format", "json", empty)
	if err != nil {
		t.Fatalf("bench failed: %v", err)
	}

	var report benchReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Iterations != 20 || report.Workers != 4 || report.Digests != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Outcome != "Suspicious" {
		t.Errorf("outcome = %q, want Suspicious", report.Outcome)
	}

	if _, err := execute(t, "bench", "--iterations", "0", empty); err == nil {
		t.Error("bench --iterations 0 should fail")
	}
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, err := execute(t, "completion", shell)
			if err != nil {
				t.Fatalf("completion %s failed: %v", shell, err)
			}
			if !strings.Contains(out, "triage") {
				t.Errorf("completion script does not mention triage")
			}
		})
	}

	if _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("completion tcsh should fail")
	}
}
