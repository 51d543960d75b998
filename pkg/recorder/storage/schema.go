package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the run record tables. Times and durations are stored as
// integer nanoseconds so range filters compare numerically.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,

    artifact TEXT NOT NULL,
    artifact_sha256 TEXT NOT NULL,
    artifact_size INTEGER NOT NULL,

    outcome TEXT NOT NULL,
    severity TEXT NOT NULL,
    score REAL NOT NULL,
    risk_hints TEXT,
    emissions INTEGER NOT NULL,
    deferred INTEGER NOT NULL,
    bounds_exceeded BOOLEAN NOT NULL,

    generation INTEGER NOT NULL,
    digest TEXT NOT NULL,

    recorded_at INTEGER NOT NULL,
    duration INTEGER NOT NULL,

    result TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_recorded_at ON runs(recorded_at);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
CREATE INDEX IF NOT EXISTS idx_runs_artifact_sha256 ON runs(artifact_sha256);
CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const recordColumns = `id, run_id, artifact, artifact_sha256, artifact_size,
	outcome, severity, score, risk_hints, emissions, deferred, bounds_exceeded,
	generation, digest, recorded_at, duration, result`

// sortColumns maps query sort fields to columns.
var sortColumns = map[string]string{
	"recorded_at": "recorded_at",
	"score":       "score",
	"artifact":    "artifact",
	"duration":    "duration",
}
