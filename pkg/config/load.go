package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "TRIAGE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over NewDefaultConfig, remaining zero values get their
// defaults, and the result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named TRIAGE_SECTION_FIELD (for example
// TRIAGE_STAGES_PATH). Environment variables take precedence over the file.
// An empty path skips the file and starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// envBinding ties one environment variable to the field it overrides.
type envBinding struct {
	name string
	set  func(cfg *Config, val string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*field(cfg) = val
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"ENGINE_SCORE_CEILING", floatVar(func(c *Config) *float64 { return &c.Engine.ScoreCeiling })},
	{"ENGINE_PROBE_CONCURRENCY", intVar(func(c *Config) *int { return &c.Engine.ProbeConcurrency })},
	{"ENGINE_BATCH_WORKERS", intVar(func(c *Config) *int { return &c.Engine.BatchWorkers })},
	{"ENGINE_TRACE", boolVar(func(c *Config) *bool { return &c.Engine.Trace })},

	{"STAGES_PATH", stringVar(func(c *Config) *string { return &c.Stages.Path })},
	{"STAGES_WATCH", boolVar(func(c *Config) *bool { return &c.Stages.Watch })},
	{"STAGES_DEBOUNCE_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Stages.DebounceInterval })},
	{"STAGES_GIT_REPOSITORY", stringVar(func(c *Config) *string { return &c.Stages.Git.Repository })},
	{"STAGES_GIT_BRANCH", stringVar(func(c *Config) *string { return &c.Stages.Git.Branch })},
	{"STAGES_GIT_TOKEN", stringVar(func(c *Config) *string { return &c.Stages.Git.Auth.Token })},

	{"RECORDER_ENABLED", boolVar(func(c *Config) *bool { return &c.Recorder.Enabled })},
	{"RECORDER_BACKEND", stringVar(func(c *Config) *string { return &c.Recorder.Backend })},
	{"RECORDER_SQLITE_PATH", stringVar(func(c *Config) *string { return &c.Recorder.SQLite.Path })},
	{"RECORDER_RETENTION_DAYS", intVar(func(c *Config) *int { return &c.Recorder.Retention.Days })},
	{"RECORDER_RETENTION_PRUNE_SCHEDULE", stringVar(func(c *Config) *string { return &c.Recorder.Retention.PruneSchedule })},

	{"WATCH_INBOX", stringVar(func(c *Config) *string { return &c.Watch.Inbox })},
	{"WATCH_LISTEN_ADDRESS", stringVar(func(c *Config) *string { return &c.Watch.ListenAddress })},

	{"TELEMETRY_LOGGING_LEVEL", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Level })},
	{"TELEMETRY_LOGGING_FORMAT", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Format })},
	{"TELEMETRY_METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled })},
	{"TELEMETRY_METRICS_PATH", stringVar(func(c *Config) *string { return &c.Telemetry.Metrics.Path })},
	{"TELEMETRY_METRICS_TEXTFILE_PATH", stringVar(func(c *Config) *string { return &c.Telemetry.Metrics.TextfilePath })},
	{"TELEMETRY_TRACING_ENABLED", boolVar(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled })},
	{"TELEMETRY_TRACING_ENDPOINT", stringVar(func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint })},
	{"TELEMETRY_TRACING_SAMPLE_RATIO", floatVar(func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio })},
	{"TELEMETRY_TRACING_INSECURE", boolVar(func(c *Config) *bool { return &c.Telemetry.Tracing.Insecure })},
}

// applyEnvOverrides applies every set TRIAGE_* variable. Unparsable values
// are reported as field errors instead of being silently ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	var errs []FieldError
	for _, b := range envBindings {
		val, ok := lookup(EnvPrefix + b.name)
		if !ok || val == "" {
			continue
		}
		if err := b.set(cfg, val); err != nil {
			errs = append(errs, FieldError{
				Field:   EnvPrefix + b.name,
				Message: fmt.Sprintf("invalid value %q: %v", val, err),
			})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
