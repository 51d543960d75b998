package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/triage/pkg/cli"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Bounded, staged rule evaluation for file triage",
	Long: `Triage runs untrusted artifacts through an ordered pipeline of rule stages.

Each stage reads the artifact through a bounded reader, runs its probes and
rules, and records facts. The finalization stage resolves an outcome and
dispatches follow-up work. Every stage has explicit read, scan, depth and
member ceilings, so a hostile file can exhaust a stage but never the host.

Stage definitions are YAML files; see "triage lint" to check them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, cli.ErrFindings) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus TRIAGE_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
