package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/triage/pkg/cli"
	"mercator-hq/triage/pkg/recorder"
	"mercator-hq/triage/pkg/recorder/export"
	"mercator-hq/triage/pkg/recorder/retention"
)

var historyFlags struct {
	since          time.Duration
	outcome        string
	severity       string
	artifact       string
	sha256         string
	runID          string
	minScore       float64
	boundsExceeded bool
	limit          int
	offset         int
	sortBy         string
	order          string
	format         string
	count          bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query recorded runs",
	Long: `Query runs persisted by "triage run --record" and "triage watch".

Examples:
  # Last 20 runs
  triage history --limit 20

  # Malicious verdicts of the last day as CSV
  triage history --outcome Malicious --since 24h --format csv

  # Every recorded run of one file
  triage history --sha256 e3b0c442...

  # Show the full result of one record
  triage history show 3f2a...`,
	Args: cobra.NoArgs,
	RunE: queryHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Print one recorded run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  showRecord,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy now",
	Args:  cobra.NoArgs,
	RunE:  pruneHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd, historyPruneCmd)

	f := historyCmd.Flags()
	f.DurationVar(&historyFlags.since, "since", 0, "only runs recorded within this duration (e.g. 24h)")
	f.StringVar(&historyFlags.outcome, "outcome", "", "filter by outcome")
	f.StringVar(&historyFlags.severity, "severity", "", "filter by severity")
	f.StringVar(&historyFlags.artifact, "artifact", "", "filter by artifact name")
	f.StringVar(&historyFlags.sha256, "sha256", "", "filter by artifact SHA-256")
	f.StringVar(&historyFlags.runID, "run-id", "", "filter by run ID")
	f.Float64Var(&historyFlags.minScore, "min-score", 0, "only runs scoring at least this")
	f.BoolVar(&historyFlags.boundsExceeded, "bounds-exceeded", false, "only runs that exhausted a bound")
	f.IntVar(&historyFlags.limit, "limit", 0, "maximum records (default recorder.query.default_limit)")
	f.IntVar(&historyFlags.offset, "offset", 0, "records to skip")
	f.StringVar(&historyFlags.sortBy, "sort", "recorded_at", "sort field: recorded_at, score, artifact, duration")
	f.StringVar(&historyFlags.order, "order", "desc", "sort order: asc, desc")
	f.StringVarP(&historyFlags.format, "format", "f", "text", "output format: text, json, csv")
	f.BoolVar(&historyFlags.count, "count", false, "print only the number of matching records")
}

// historyQuery builds the query from the flags that were set.
func historyQuery(cmd *cobra.Command, cfg *recorderLimits, now time.Time) (*recorder.Query, error) {
	q := &recorder.Query{
		Outcome:        historyFlags.outcome,
		Severity:       historyFlags.severity,
		Artifact:       historyFlags.artifact,
		ArtifactSHA256: historyFlags.sha256,
		RunID:          historyFlags.runID,
		Limit:          historyFlags.limit,
		Offset:         historyFlags.offset,
		SortBy:         historyFlags.sortBy,
		SortOrder:      historyFlags.order,
	}
	if historyFlags.since > 0 {
		start := now.Add(-historyFlags.since)
		q.StartTime = &start
	}
	if cmd.Flags().Changed("min-score") {
		minScore := historyFlags.minScore
		q.MinScore = &minScore
	}
	if cmd.Flags().Changed("bounds-exceeded") {
		exceeded := historyFlags.boundsExceeded
		q.BoundsExceeded = &exceeded
	}
	if q.Limit == 0 {
		q.Limit = cfg.defaultLimit
	}
	if q.Limit > cfg.maxLimit {
		return nil, cli.NewConfigError("--limit", fmt.Sprintf("must be <= %d", cfg.maxLimit))
	}
	return q, q.Validate()
}

type recorderLimits struct {
	defaultLimit int
	maxLimit     int
}

func queryHistory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(historyFlags.format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	query, err := historyQuery(cmd, &recorderLimits{
		defaultLimit: a.cfg.Recorder.Query.DefaultLimit,
		maxLimit:     min(a.cfg.Recorder.Query.MaxLimit, recorder.MaxLimit),
	}, time.Now())
	if err != nil {
		return err
	}

	_, store, closeRecorder, err := a.openRecorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if historyFlags.count {
		n, err := store.Count(ctx, query)
		if err != nil {
			return cli.NewCommandError("history", err)
		}
		_, err = fmt.Fprintln(out, n)
		return err
	}

	records, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	switch format {
	case cli.FormatJSON:
		return export.NewJSONExporter(true).Export(ctx, records, out)
	case cli.FormatCSV:
		return export.NewCSVExporter(true).Export(ctx, records, out)
	default:
		return writeRecordTable(out, records)
	}
}

func writeRecordTable(w io.Writer, records []*recorder.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no recorded runs")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tARTIFACT\tOUTCOME\tSEVERITY\tSCORE\tHINTS\tID")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RecordedAt.Local().Format(time.DateTime),
			r.Artifact,
			r.Outcome,
			r.Severity,
			strconv.FormatFloat(r.Score, 'f', -1, 64),
			strings.Join(r.RiskHints, ","),
			r.ID,
		)
	}
	return tw.Flush()
}

func showRecord(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	_, store, closeRecorder, err := a.openRecorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return cli.NewCommandError("history show", err)
	}
	return cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), rec)
}

func pruneHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	_, store, closeRecorder, err := a.openRecorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	deleted, err := retention.NewPruner(store, &a.cfg.Recorder.Retention, a.logger).Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("history prune", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d record(s)\n", deleted)
	return err
}
