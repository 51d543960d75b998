package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/triage/pkg/cli"
	"mercator-hq/triage/pkg/rules"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
	"mercator-hq/triage/pkg/rules/source"
)

var lintFlags struct {
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint [paths...]",
	Short: "Validate stage files",
	Long: `Parse and compile stage files the way the engine loads them.

Each path is a stage file or a directory of *.yaml stage files and is
checked as one pipeline: YAML syntax, stage structure, resource ceilings,
references between stages and probes, and the finalization stage.
Without arguments the configured stages.path is checked.

Examples:
  # Lint the configured stage directory
  triage lint

  # Lint a directory, JSON output for CI
  triage lint --format json stages/`,
	RunE: lintStages,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.format, "format", "f", "text", "output format: text, json")
}

// LintReport is the result of checking one stage path.
type LintReport struct {
	Path   string      `json:"path"`
	Files  []string    `json:"files"`
	Valid  bool        `json:"valid"`
	Stages []string    `json:"stages,omitempty"`
	Issues []LintIssue `json:"issues,omitempty"`
}

// LintIssue is one compilation error.
type LintIssue struct {
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func lintStages(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(lintFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return fmt.Errorf("lint supports text and json output")
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 0 {
		args = []string{a.cfg.Stages.Path}
	}

	reports := make(lintReports, 0, len(args))
	for _, path := range args {
		reports = append(reports, lintPath(path))
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), reports); err != nil {
		return err
	}
	for _, r := range reports {
		if !r.Valid {
			return fmt.Errorf("%s: %w", r.Path, cli.ErrFindings)
		}
	}
	return nil
}

func lintPath(path string) LintReport {
	report := LintReport{Path: path, Valid: true}

	files, err := source.NewFileSource(path, nil).Paths()
	if err == nil && len(files) == 0 {
		err = fmt.Errorf("no stage files found")
	}
	if err != nil {
		report.Valid = false
		report.Issues = append(report.Issues, LintIssue{
			Type:    string(ruleErrors.ErrorTypeIO),
			Message: err.Error(),
		})
		return report
	}
	report.Files = files

	pipeline, err := rules.LoadPipeline(files)
	if err != nil {
		report.Valid = false
		report.Issues = issuesFrom(err)
		return report
	}
	for _, s := range pipeline.Stages {
		report.Stages = append(report.Stages, s.Name)
	}
	return report
}

func issuesFrom(err error) []LintIssue {
	var list *ruleErrors.ErrorList
	var single *ruleErrors.Error
	switch {
	case errors.As(err, &list):
		issues := make([]LintIssue, 0, len(list.Errors))
		for _, e := range list.Errors {
			issues = append(issues, issueFrom(e))
		}
		return issues
	case errors.As(err, &single):
		return []LintIssue{issueFrom(single)}
	default:
		return []LintIssue{{Type: string(ruleErrors.ErrorTypeIO), Message: err.Error()}}
	}
}

func issueFrom(e *ruleErrors.Error) LintIssue {
	return LintIssue{
		File:       e.Location.File,
		Line:       e.Location.Line,
		Column:     e.Location.Column,
		Type:       string(e.Type),
		Code:       string(e.Code),
		Message:    e.Message,
		Suggestion: e.Suggestion,
	}
}

type lintReports []LintReport

func (r lintReports) String() string {
	var sb strings.Builder
	for i, report := range r {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeLintReport(&sb, report)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func writeLintReport(w io.Writer, r LintReport) {
	if r.Valid {
		fmt.Fprintf(w, "✓ %s: %d stage(s) [%s]\n", r.Path, len(r.Stages), strings.Join(r.Stages, " -> "))
		return
	}

	fmt.Fprintf(w, "✗ %s: %d error(s)\n", r.Path, len(r.Issues))
	for _, issue := range r.Issues {
		loc := issue.File
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", issue.File, issue.Line, issue.Column)
		}
		kind := issue.Type
		if issue.Code != "" {
			kind += ":" + issue.Code
		}
		if loc != "" {
			fmt.Fprintf(w, "  %s [%s] %s\n", loc, kind, issue.Message)
		} else {
			fmt.Fprintf(w, "  [%s] %s\n", kind, issue.Message)
		}
		if issue.Suggestion != "" {
			fmt.Fprintf(w, "    suggestion: %s\n", issue.Suggestion)
		}
	}
}
