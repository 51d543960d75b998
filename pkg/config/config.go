package config

import "time"

// Config is the root configuration structure for the triage engine.
// It contains the engine settings, where stage definitions come from,
// run recording and telemetry.
type Config struct {
	// Engine contains evaluation settings shared by every run.
	Engine EngineConfig `yaml:"engine"`

	// Stages contains the location of the stage definitions and reload settings.
	Stages StagesConfig `yaml:"stages"`

	// Recorder contains configuration for persisting finalized runs,
	// including backend selection, retention and query limits.
	Recorder RecorderConfig `yaml:"recorder"`

	// Watch contains configuration for the inbox watch mode.
	Watch WatchConfig `yaml:"watch"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig contains evaluation settings.
type EngineConfig struct {
	// ScoreCeiling is the upper clamp of the accumulated score.
	// Default: 1.0
	ScoreCeiling float64 `yaml:"score_ceiling"`

	// ProbeConcurrency is the number of probes of one wave that run at once.
	// Default: 4
	ProbeConcurrency int `yaml:"probe_concurrency"`

	// BatchWorkers is the number of artifacts evaluated concurrently by
	// batch runs.
	// Default: 4
	BatchWorkers int `yaml:"batch_workers"`

	// Trace records a step-by-step evaluation trace in every result.
	// Default: false
	Trace bool `yaml:"trace"`
}

// StagesConfig contains the stage definition source configuration.
type StagesConfig struct {
	// Path is a stage file or a directory of *.yaml stage files.
	// Default: "./stages"
	Path string `yaml:"path"`

	// Watch enables hot reload when stage files change.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces bursts of file events into one reload.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// MaxFileSize rejects stage files larger than this many bytes.
	// Default: 1048576 (1 MiB)
	MaxFileSize int64 `yaml:"max_file_size"`

	// Git loads stages from a git repository instead of Path when
	// Repository is set.
	Git GitStagesConfig `yaml:"git"`
}

// GitStagesConfig configures a git repository holding stage files.
type GitStagesConfig struct {
	// Repository is the clone URL or a local repository path.
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the stage directory inside the repository.
	// Default: "" (repository root)
	Path string `yaml:"path"`

	// LocalPath is where the repository is cloned.
	// Default: "data/stages-repo"
	LocalPath string `yaml:"local_path"`

	// Depth limits clone history. 0 clones the full history.
	Depth int `yaml:"depth"`

	// PollInterval is how often the remote is pulled while watching.
	// Default: 1m
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds each clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig contains git authentication settings.
type GitAuthConfig struct {
	// Type is one of "none", "token", "ssh".
	// Default: "none"
	Type string `yaml:"type"`

	// Token is an HTTPS access token (type "token").
	Token string `yaml:"token"`

	// SSHKeyPath is a private key file (type "ssh"); it must not be group
	// or world readable.
	SSHKeyPath string `yaml:"ssh_key_path"`

	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// RecorderConfig contains configuration for run recording and storage.
type RecorderConfig struct {
	// Enabled controls whether finalized runs are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend specifies the storage backend for run records.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query configuration.
	Query QueryConfig `yaml:"query"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/triage.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain run records.
	// 0 means keep records forever.
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`
}

// QueryConfig contains query configuration.
type QueryConfig struct {
	// DefaultLimit is the default number of records to return if not specified.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the maximum number of records returned by a single query.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// WatchConfig contains configuration for the inbox watch mode.
type WatchConfig struct {
	// Inbox is the directory watched for new artifacts.
	// Default: "./inbox"
	Inbox string `yaml:"inbox"`

	// ListenAddress serves /metrics while watching. Empty disables it.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// SettleInterval is how long a new file must stay unchanged before it
	// is evaluated.
	// Default: 500ms
	SettleInterval time.Duration `yaml:"settle_interval"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "triage"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "engine"
	Subsystem string `yaml:"subsystem"`

	// RunDurationBuckets defines histogram buckets for run duration (seconds).
	// Default: [0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5]
	RunDurationBuckets []float64 `yaml:"run_duration_buckets"`

	// TextfilePath, when set, makes one-shot commands write their metrics
	// in the Prometheus text format to this file on exit.
	TextfilePath string `yaml:"textfile_path"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the collector connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for span exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name in traces.
	// Default: "triage"
	ServiceName string `yaml:"service_name"`
}
