// Package recorder persists finalized triage runs and queries them later.
//
// A Record summarizes one engine.Result: the artifact name, size and
// SHA-256, the outcome, severity, score and risk hints, and the result
// digest, which lets a later run of the same artifact against the same
// pipeline be checked for reproducibility. The full result is kept as JSON.
//
// Records are written asynchronously by a Recorder to a Storage backend.
// The storage subpackage provides an in-memory backend for tests and a
// SQLite backend (modernc.org/sqlite, no cgo). The retention subpackage
// prunes old records on a cron schedule and the export subpackage writes
// records as JSON or CSV.
//
// # Usage
//
//	store, err := storage.NewSQLiteStorage(&cfg.Recorder.SQLite, logger)
//	if err != nil {
//		return err
//	}
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig(), logger)
//	defer rec.Close()
//
//	hash, _ := recorder.HashArtifact(artifact.Content, artifact.Size)
//	if _, err := rec.RecordResult(ctx, result, hash, artifact.Size); err != nil {
//		logger.Warn("run not recorded", "error", err)
//	}
package recorder
