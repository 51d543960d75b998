package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/triage/pkg/cli"
	"mercator-hq/triage/pkg/engine"
)

var benchFlags struct {
	stages     string
	iterations int
	workers    int
	format     string
}

var benchCmd = &cobra.Command{
	Use:   "bench <file>",
	Short: "Measure pipeline latency on one file",
	Long: `Run one file through the pipeline repeatedly and report run latency.

The file is read into memory once and every iteration is an independent run
of the same bytes, so all iterations must produce the same result digest.
A digest mismatch is reported as an error.

Examples:
  triage bench sample.pdf
  triage bench --iterations 1000 --workers 8 --format json sample.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVarP(&benchFlags.stages, "stages", "s", "", "stage file or directory (overrides stages.path)")
	benchCmd.Flags().IntVarP(&benchFlags.iterations, "iterations", "n", 100, "number of runs")
	benchCmd.Flags().IntVarP(&benchFlags.workers, "workers", "w", 0, "concurrent runs (overrides engine.batch_workers)")
	benchCmd.Flags().StringVarP(&benchFlags.format, "format", "f", "text", "output format: text, json")
}

// benchReport summarizes a bench run.
type benchReport struct {
	Artifact   string        `json:"artifact"`
	Size       int64         `json:"size"`
	Iterations int           `json:"iterations"`
	Workers    int           `json:"workers"`
	Elapsed    time.Duration `json:"elapsed"`
	Throughput float64       `json:"runs_per_second"`
	Min        time.Duration `json:"min"`
	Mean       time.Duration `json:"mean"`
	Median     time.Duration `json:"median"`
	P95        time.Duration `json:"p95"`
	P99        time.Duration `json:"p99"`
	Max        time.Duration `json:"max"`
	Outcome    string        `json:"outcome"`
	Digests    int           `json:"distinct_digests"`
}

func (r *benchReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Artifact:    %s (%d bytes)\n", r.Artifact, r.Size)
	fmt.Fprintf(&sb, "Runs:        %d on %d worker(s) in %s\n", r.Iterations, r.Workers, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Throughput:  %.2f runs/s\n", r.Throughput)
	fmt.Fprintf(&sb, "Outcome:     %s\n", r.Outcome)
	fmt.Fprintf(&sb, "Digests:     %d distinct\n", r.Digests)
	sb.WriteString("\nLatency:\n")
	for _, l := range []struct {
		name string
		d    time.Duration
	}{
		{"Min", r.Min}, {"Mean", r.Mean}, {"Median", r.Median},
		{"p95", r.P95}, {"p99", r.P99}, {"Max", r.Max},
	} {
		fmt.Fprintf(&sb, "  %-7s %.3fms\n", l.name+":", float64(l.d.Microseconds())/1000)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func runBench(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(benchFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return fmt.Errorf("bench supports text and json output")
	}
	if benchFlags.iterations < 1 {
		return cli.NewConfigError("--iterations", "must be at least 1")
	}
	if benchFlags.workers < 0 {
		return cli.NewConfigError("--workers", "must not be negative")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return cli.NewCommandError("bench", err)
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	workers := benchFlags.workers
	if workers == 0 {
		workers = a.cfg.Engine.BatchWorkers
	}
	src, err := a.stageSource(benchFlags.stages)
	if err != nil {
		return err
	}
	e, err := a.newEngine(ctx, src, func(c *engine.EngineConfig) {
		c.WithBatchWorkers(workers)
	})
	if err != nil {
		return cli.NewCommandError("bench", err)
	}

	artifacts := make([]*engine.Artifact, benchFlags.iterations)
	for i := range artifacts {
		artifacts[i] = engine.BytesArtifact(args[0], data, nil)
	}

	start := time.Now()
	results, err := e.RunBatch(ctx, artifacts)
	if err != nil {
		return cli.NewCommandError("bench", err)
	}
	report := summarize(results, time.Since(start))
	report.Artifact = args[0]
	report.Size = int64(len(data))
	report.Workers = workers

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Digests != 1 {
		return cli.NewCommandError("bench", fmt.Errorf("%d runs of the same bytes produced %d distinct digests", report.Iterations, report.Digests))
	}
	return nil
}

// summarize computes latency percentiles over the per-run durations.
func summarize(results []*engine.Result, elapsed time.Duration) *benchReport {
	r := &benchReport{Iterations: len(results), Elapsed: elapsed}
	if len(results) == 0 {
		return r
	}

	latencies := make([]time.Duration, len(results))
	digests := make(map[string]struct{})
	var sum time.Duration
	for i, res := range results {
		latencies[i] = res.Duration
		sum += res.Duration
		digests[res.Digest()] = struct{}{}
	}
	slices.Sort(latencies)

	n := len(latencies)
	r.Min = latencies[0]
	r.Max = latencies[n-1]
	r.Mean = sum / time.Duration(n)
	r.Median = latencies[n/2]
	r.P95 = latencies[min(n-1, n*95/100)]
	r.P99 = latencies[min(n-1, n*99/100)]
	r.Outcome = results[0].Outcome.Name
	r.Digests = len(digests)
	if elapsed > 0 {
		r.Throughput = float64(n) / elapsed.Seconds()
	}
	return r
}
