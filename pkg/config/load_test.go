package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triage.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  probe_concurrency: 8
  trace: true
stages:
  path: "./examples/stages"
  watch: true
  debounce_interval: "250ms"
recorder:
  backend: "memory"
telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Engine.ProbeConcurrency != 8 {
		t.Errorf("expected probe concurrency 8, got %d", cfg.Engine.ProbeConcurrency)
	}
	if !cfg.Engine.Trace {
		t.Error("expected trace enabled")
	}
	if cfg.Stages.DebounceInterval != 250*time.Millisecond {
		t.Errorf("expected debounce %v, got %v", 250*time.Millisecond, cfg.Stages.DebounceInterval)
	}
	if cfg.Recorder.Backend != "memory" {
		t.Errorf("expected backend memory, got %q", cfg.Recorder.Backend)
	}
	if cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("expected text format, got %q", cfg.Telemetry.Logging.Format)
	}

	// Untouched fields keep their defaults.
	if cfg.Engine.BatchWorkers != DefaultBatchWorkers {
		t.Errorf("expected default batch workers, got %d", cfg.Engine.BatchWorkers)
	}
	if !cfg.Recorder.Enabled {
		t.Error("expected recorder enabled by default")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled by default")
	}
}

func TestLoadConfig_ExplicitFalseWins(t *testing.T) {
	path := writeConfig(t, `
recorder:
  enabled: false
telemetry:
  metrics:
    enabled: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Recorder.Enabled || cfg.Telemetry.Metrics.Enabled {
		t.Errorf("explicit false overridden: recorder=%v metrics=%v",
			cfg.Recorder.Enabled, cfg.Telemetry.Metrics.Enabled)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"malformed yaml", "engine: [", "failed to parse"},
		{"bad backend", "recorder:\n  backend: postgres\n", "recorder.backend"},
		{"bad schedule", "recorder:\n  retention:\n    prune_schedule: \"every day\"\n", "recorder.retention.prune_schedule"},
		{"bad level", "telemetry:\n  logging:\n    level: loud\n", "telemetry.logging.level"},
		{"tracing without endpoint", "telemetry:\n  tracing:\n    enabled: true\n", "telemetry.tracing.endpoint"},
		{"git token missing", "stages:\n  git:\n    repository: https://example.com/stages.git\n    auth:\n      type: token\n", "stages.git.auth.token"},
		{"git auth type", "stages:\n  git:\n    repository: https://example.com/stages.git\n    auth:\n      type: kerberos\n", "stages.git.auth.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_GitDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "stages:\n  git:\n    repository: https://example.com/stages.git\n    path: stages\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	want := GitStagesConfig{
		Repository:   "https://example.com/stages.git",
		Branch:       DefaultGitBranch,
		Path:         "stages",
		LocalPath:    DefaultGitLocalPath,
		PollInterval: DefaultGitPollInterval,
		Timeout:      DefaultGitTimeout,
		Auth:         GitAuthConfig{Type: "none"},
	}
	if diff := cmp.Diff(want, cfg.Stages.Git); diff != "" {
		t.Errorf("git config mismatch (-want +got):\n%s", diff)
	}

	// Without a repository the section stays empty.
	if diff := cmp.Diff(GitStagesConfig{}, NewDefaultConfig().Stages.Git); diff != "" {
		t.Errorf("default git config not empty:\n%s", diff)
	}
}

func TestLoadConfigWithEnvOverrides_GitRepository(t *testing.T) {
	t.Setenv("TRIAGE_STAGES_GIT_REPOSITORY", "https://example.com/stages.git")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Stages.Git.Branch != DefaultGitBranch || cfg.Stages.Git.PollInterval != DefaultGitPollInterval {
		t.Errorf("git defaults not applied after env override: %+v", cfg.Stages.Git)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "stages:\n  path: ./from-file\n")

	t.Setenv("TRIAGE_STAGES_PATH", "./from-env")
	t.Setenv("TRIAGE_ENGINE_BATCH_WORKERS", "16")
	t.Setenv("TRIAGE_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("TRIAGE_STAGES_DEBOUNCE_INTERVAL", "1s")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	got := []interface{}{cfg.Stages.Path, cfg.Engine.BatchWorkers, cfg.Telemetry.Metrics.Enabled, cfg.Stages.DebounceInterval}
	want := []interface{}{"./from-env", 16, false, time.Second}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValue(t *testing.T) {
	t.Setenv("TRIAGE_ENGINE_PROBE_CONCURRENCY", "many")

	_, err := LoadConfigWithEnvOverrides("")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Errors[0].Field != "TRIAGE_ENGINE_PROBE_CONCURRENCY" {
		t.Errorf("unexpected field %q", verr.Errors[0].Field)
	}
}

func TestNewDefaultConfig_Valid(t *testing.T) {
	if err := Validate(NewDefaultConfig()); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Engine.ScoreCeiling = -1
	cfg.Engine.ProbeConcurrency = 0
	cfg.Watch.ListenAddress = "no-port"

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	var fields []string
	for _, fe := range verr.Errors {
		fields = append(fields, fe.Field)
	}
	want := []string{"engine.score_ceiling", "engine.probe_concurrency", "watch.listen_address"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "3 errors") {
		t.Errorf("expected error count in message, got %q", err)
	}
}

func TestSingleton(t *testing.T) {
	prev := GetConfig()
	t.Cleanup(func() { SetConfig(prev) })

	path := writeConfig(t, "engine:\n  batch_workers: 2\n")
	SetConfig(nil)
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if MustGetConfig().Engine.BatchWorkers != 2 {
		t.Errorf("expected reloaded config, got %+v", GetConfig().Engine)
	}

	if err := ReloadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig().Engine.BatchWorkers != 2 {
		t.Error("failed reload replaced the configuration")
	}
}
