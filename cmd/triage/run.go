package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mercator-hq/triage/pkg/cli"
	"mercator-hq/triage/pkg/engine"
	"mercator-hq/triage/pkg/recorder"
)

var runFlags struct {
	stages   string
	claims   map[string]string
	workers  int
	record   bool
	trace    bool
	format   string
	failOn   []string
	progress bool
}

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Analyse files and print their verdicts",
	Long: `Analyse one or more files with the configured stage pipeline.

Every file is run independently; --workers files are analysed at once.
Claimed metadata (--claim) is visible to rules as context.claimed.<key>.

Examples:
  # Analyse a file with the stages in ./stages
  triage run invoice.pdf

  # Full JSON results, with the submitter's claimed extension
  triage run --format json --claim extension=pdf invoice.pdf

  # Record results and fail the build on a bad verdict
  triage run --record --fail-on Malicious,Suspicious uploads/*`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArtifacts,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.stages, "stages", "s", "", "stage file or directory (overrides stages.path)")
	runCmd.Flags().StringToStringVar(&runFlags.claims, "claim", nil, "claimed metadata as key=value (repeatable)")
	runCmd.Flags().IntVarP(&runFlags.workers, "workers", "w", 0, "files analysed concurrently (overrides engine.batch_workers)")
	runCmd.Flags().BoolVar(&runFlags.record, "record", false, "persist results with the configured recorder")
	runCmd.Flags().BoolVar(&runFlags.trace, "trace", false, "include the evaluation trace in JSON results")
	runCmd.Flags().StringVarP(&runFlags.format, "format", "f", "text", "output format: text, json, csv")
	runCmd.Flags().StringSliceVar(&runFlags.failOn, "fail-on", nil, "exit with status 2 when any verdict has one of these outcomes")
	runCmd.Flags().BoolVar(&runFlags.progress, "progress", false, "show a progress bar on stderr")
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(runFlags.format)
	if err != nil {
		return err
	}
	if runFlags.workers < 0 {
		return cli.NewConfigError("--workers", "must not be negative")
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	src, err := a.stageSource(runFlags.stages)
	if err != nil {
		return err
	}
	e, err := a.newEngine(ctx, src, func(c *engine.EngineConfig) {
		if runFlags.workers > 0 {
			c.WithBatchWorkers(runFlags.workers)
		}
		if runFlags.trace {
			c.WithTrace(true)
		}
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	var rec *recorder.Recorder
	if runFlags.record {
		r, _, closeRecorder, err := a.openRecorder()
		if err != nil {
			return err
		}
		defer closeRecorder()
		rec = r
	}

	var progress cli.ProgressReporter
	if runFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
		progress.Start(int64(len(args)))
	}

	artifacts := make([]*engine.Artifact, len(args))
	files := make([]*artifactFile, len(args))
	for i, path := range args {
		artifacts[i], files[i], err = openArtifact(path, runFlags.claims)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	results, err := e.RunBatchFunc(ctx, artifacts, func(i int, res *engine.Result) error {
		defer files[i].Close()
		if rec != nil {
			if err := recordResult(ctx, rec, res, files[i], artifacts[i].Size); err != nil {
				return err
			}
		}
		if progress != nil {
			progress.Increment()
		}
		return nil
	})
	if err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return cli.NewCommandError("run", err)
	}
	if progress != nil {
		progress.Finish()
	}

	if err := writeResults(cmd.OutOrStdout(), format, results); err != nil {
		return err
	}

	for _, res := range results {
		if slices.Contains(runFlags.failOn, res.Outcome.Name) {
			return fmt.Errorf("%s: outcome %s: %w", res.Artifact, res.Outcome.Name, cli.ErrFindings)
		}
	}
	return nil
}

// artifactFile is the content of a file artifact. The file is opened on
// the first read, so a batch only holds descriptors for the runs in flight.
type artifactFile struct {
	path string

	once sync.Once
	f    *os.File
	err  error
}

// ReadAt implements io.ReaderAt.
func (a *artifactFile) ReadAt(p []byte, off int64) (int, error) {
	a.once.Do(func() { a.f, a.err = os.Open(a.path) })
	if a.err != nil {
		return 0, a.err
	}
	if a.f == nil {
		return 0, os.ErrClosed
	}
	return a.f.ReadAt(p, off)
}

// Close releases the file. Reads after Close fail.
func (a *artifactFile) Close() error {
	a.once.Do(func() { a.err = os.ErrClosed })
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// openArtifact describes the regular file at path as an artifact.
func openArtifact(path string, claims map[string]string) (*engine.Artifact, *artifactFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("%s is not a regular file", path)
	}

	content := &artifactFile{path: path}
	return &engine.Artifact{
		Name:    path,
		Content: content,
		Size:    info.Size(),
		Claimed: claims,
	}, content, nil
}

// recordResult hashes the artifact content and records res.
func recordResult(ctx context.Context, rec *recorder.Recorder, res *engine.Result, content io.ReaderAt, size int64) error {
	hash, err := recorder.HashArtifact(content, size)
	if err != nil {
		return err
	}
	_, err = rec.RecordResult(ctx, res, hash, size)
	return err
}

// analyseFile runs one file and, when rec is set, records the result.
func analyseFile(ctx context.Context, e *engine.Engine, rec *recorder.Recorder, path string, claims map[string]string) (*engine.Result, error) {
	artifact, content, err := openArtifact(path, claims)
	if err != nil {
		return nil, err
	}
	defer content.Close()

	res, err := e.Run(ctx, artifact)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if err := recordResult(ctx, rec, res, content, artifact.Size); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writeResults(w io.Writer, format cli.OutputFormat, results []*engine.Result) error {
	switch format {
	case cli.FormatJSON:
		return cli.NewFormatter(format).FormatTo(w, results)
	default:
		return cli.NewFormatter(format).FormatTo(w, verdicts(results))
	}
}

// verdicts renders results as one line or row per artifact.
type verdicts []*engine.Result

func (v verdicts) Header() []string {
	return []string{"artifact", "outcome", "severity", "score", "risk_hints", "emissions", "deferred", "bounds_exceeded", "digest"}
}

func (v verdicts) Rows() [][]string {
	rows := make([][]string, len(v))
	for i, r := range v {
		rows[i] = []string{
			r.Artifact,
			r.Outcome.Name,
			r.Outcome.Severity,
			strconv.FormatFloat(r.Score, 'f', -1, 64),
			strings.Join(r.RiskHints, ";"),
			strconv.Itoa(len(r.Emissions)),
			strconv.Itoa(len(r.Deferred)),
			strconv.FormatBool(r.BoundsExceeded),
			r.Digest(),
		}
	}
	return rows
}

func (v verdicts) String() string {
	var sb strings.Builder
	for i, r := range v {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s (%s) score=%g", r.Artifact, r.Outcome.Name, r.Outcome.Severity, r.Score)
		if len(r.RiskHints) > 0 {
			fmt.Fprintf(&sb, " hints=%s", strings.Join(r.RiskHints, ","))
		}
		if r.BoundsExceeded {
			sb.WriteString(" [bounds exceeded]")
		}
		for _, em := range r.Emissions {
			fmt.Fprintf(&sb, "\n  emit %s (%s/%s)", em.Kind, em.Stage, em.Rule)
		}
		for _, d := range r.Deferred {
			fmt.Fprintf(&sb, "\n  defer %s::%s (%s/%s)", d.Actor, d.Action, d.Stage, d.Rule)
		}
	}
	return sb.String()
}
