package config

import "time"

// Default values for configuration fields.
const (
	// Engine defaults
	DefaultScoreCeiling     = 1.0
	DefaultProbeConcurrency = 4
	DefaultBatchWorkers     = 4

	// Source, recorder and watch defaults
	DefaultStagesPath          = "./stages"
	DefaultStagesDebounce      = 100 * time.Millisecond
	DefaultStagesMaxFileSize   = int64(1 << 20)
	DefaultGitBranch           = "main"
	DefaultGitLocalPath        = "data/stages-repo"
	DefaultGitPollInterval     = time.Minute
	DefaultGitTimeout          = 30 * time.Second
	DefaultGitAuthType         = "none"
	DefaultRecorderEnabled     = true
	DefaultRecorderBackend     = "sqlite"
	DefaultSQLitePath          = "data/triage.db"
	DefaultSQLiteMaxOpenConns  = 10
	DefaultSQLiteMaxIdleConns  = 5
	DefaultSQLiteWALMode       = true
	DefaultSQLiteBusyTimeout   = 5 * time.Second
	DefaultRetentionDays       = 30
	DefaultRetentionSchedule   = "0 3 * * *"
	DefaultQueryDefaultLimit   = 100
	DefaultQueryMaxLimit       = 10000
	DefaultWatchInbox          = "./inbox"
	DefaultWatchListenAddress  = "127.0.0.1:9464"
	DefaultWatchSettleInterval = 500 * time.Millisecond

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "triage"
	DefaultMetricsSubsystem   = "engine"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingServiceName = "triage"
)

// DefaultRunDurationBuckets are the histogram buckets, in seconds, used for
// run and stage durations.
var DefaultRunDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// NewDefaultConfig returns a configuration with every field set to its
// default. LoadConfig decodes YAML on top of it, so booleans that default
// to true stay true unless a file sets them.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Recorder: RecorderConfig{
			Enabled: DefaultRecorderEnabled,
			SQLite:  SQLiteConfig{WALMode: DefaultSQLiteWALMode},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default. Boolean
// fields are left alone; see NewDefaultConfig.
func ApplyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.ScoreCeiling == 0 {
		cfg.Engine.ScoreCeiling = DefaultScoreCeiling
	}
	if cfg.Engine.ProbeConcurrency == 0 {
		cfg.Engine.ProbeConcurrency = DefaultProbeConcurrency
	}
	if cfg.Engine.BatchWorkers == 0 {
		cfg.Engine.BatchWorkers = DefaultBatchWorkers
	}

	// Stage defaults
	if cfg.Stages.Path == "" {
		cfg.Stages.Path = DefaultStagesPath
	}
	if cfg.Stages.DebounceInterval == 0 {
		cfg.Stages.DebounceInterval = DefaultStagesDebounce
	}
	if cfg.Stages.MaxFileSize == 0 {
		cfg.Stages.MaxFileSize = DefaultStagesMaxFileSize
	}
	if git := &cfg.Stages.Git; git.Repository != "" {
		if git.Branch == "" {
			git.Branch = DefaultGitBranch
		}
		if git.LocalPath == "" {
			git.LocalPath = DefaultGitLocalPath
		}
		if git.PollInterval == 0 {
			git.PollInterval = DefaultGitPollInterval
		}
		if git.Timeout == 0 {
			git.Timeout = DefaultGitTimeout
		}
		if git.Auth.Type == "" {
			git.Auth.Type = DefaultGitAuthType
		}
	}

	// Recorder defaults
	if cfg.Recorder.Backend == "" {
		cfg.Recorder.Backend = DefaultRecorderBackend
	}
	if cfg.Recorder.SQLite.Path == "" {
		cfg.Recorder.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Recorder.SQLite.MaxOpenConns == 0 {
		cfg.Recorder.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Recorder.SQLite.MaxIdleConns == 0 {
		cfg.Recorder.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Recorder.SQLite.BusyTimeout == 0 {
		cfg.Recorder.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Recorder.Retention.Days == 0 {
		cfg.Recorder.Retention.Days = DefaultRetentionDays
	}
	if cfg.Recorder.Retention.PruneSchedule == "" {
		cfg.Recorder.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if cfg.Recorder.Query.DefaultLimit == 0 {
		cfg.Recorder.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if cfg.Recorder.Query.MaxLimit == 0 {
		cfg.Recorder.Query.MaxLimit = DefaultQueryMaxLimit
	}

	// Watch defaults
	if cfg.Watch.Inbox == "" {
		cfg.Watch.Inbox = DefaultWatchInbox
	}
	if cfg.Watch.ListenAddress == "" {
		cfg.Watch.ListenAddress = DefaultWatchListenAddress
	}
	if cfg.Watch.SettleInterval == 0 {
		cfg.Watch.SettleInterval = DefaultWatchSettleInterval
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RunDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RunDurationBuckets = append([]float64(nil), DefaultRunDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 && cfg.Telemetry.Tracing.Sampler == "ratio" {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}
