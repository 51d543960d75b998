/*
Package cli provides the helpers shared by the triage commands.

Output formatting renders command results as text, JSON or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Values rendered as CSV implement Tabular.

Progress is reported on stderr while a batch of artifacts is analysed:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(files)))
	...
	progress.Finish()

SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM, which
commands pass down to the engine so a run stops between stages.
*/
package cli
