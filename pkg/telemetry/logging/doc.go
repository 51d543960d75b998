// Package logging builds the structured logger used across triage.
//
// New returns a plain *slog.Logger. Its handler reads the run ID, artifact
// and stage stored with WithRunID, WithArtifact and WithStage, plus the
// active OpenTelemetry span, and attaches them to every record logged
// through the *Context methods:
//
//	logger, _ := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithRunID(ctx, runID)
//	logger.InfoContext(ctx, "run finalized", "outcome", "Malicious")
package logging
