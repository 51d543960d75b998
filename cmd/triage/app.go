package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"mercator-hq/triage/pkg/cli"
	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/engine"
	"mercator-hq/triage/pkg/recorder"
	"mercator-hq/triage/pkg/recorder/storage"
	"mercator-hq/triage/pkg/rules/source"
	"mercator-hq/triage/pkg/telemetry"
)

// app holds what every command builds from the configuration.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
}

// loadConfig initializes the process configuration and applies the global
// flag overrides.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp loads configuration and telemetry. Logs go to logs, which is
// stderr for commands whose stdout carries results.
func newApp(logs io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = os.Stderr
	}

	tel, err := telemetry.New(&cfg.Telemetry, Version, logs)
	if err != nil {
		return nil, cli.NewConfigError("telemetry", err.Error())
	}
	slog.SetDefault(tel.Logger())

	return &app{cfg: cfg, telemetry: tel, logger: tel.Logger()}, nil
}

// close flushes telemetry.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// stageSource returns the source for path. With no path it uses the
// configured git repository when one is set, else stages.path.
func (a *app) stageSource(path string) (source.Source, error) {
	if path == "" && a.cfg.Stages.Git.Repository != "" {
		src, err := source.NewGitSource(&a.cfg.Stages.Git, a.logger)
		if err != nil {
			return nil, cli.NewConfigError("stages.git", err.Error())
		}
		return src, nil
	}
	if path == "" {
		path = a.cfg.Stages.Path
	}
	watch := source.DefaultWatcherConfig()
	watch.DebounceInterval = a.cfg.Stages.DebounceInterval
	return source.NewFileSource(path, a.logger).WithWatcherConfig(watch), nil
}

// newEngine builds an engine from the configuration and loads src.
func (a *app) newEngine(ctx context.Context, src source.Source, mutate func(*engine.EngineConfig)) (*engine.Engine, error) {
	ecfg := engine.FromConfig(&a.cfg.Engine).
		WithLogger(a.logger).
		WithMetrics(a.telemetry.Metrics()).
		WithTracer(a.telemetry.Tracer())
	if mutate != nil {
		mutate(ecfg)
	}

	e, err := engine.New(ecfg)
	if err != nil {
		return nil, cli.NewConfigError("engine", err.Error())
	}
	if err := e.Load(ctx, src); err != nil {
		return nil, err
	}
	return e, nil
}

// openRecorder opens the configured store and starts a recorder on it.
// The returned func closes both.
func (a *app) openRecorder() (*recorder.Recorder, recorder.Storage, func(), error) {
	store, err := storage.New(&a.cfg.Recorder, a.logger)
	if err != nil {
		return nil, nil, nil, cli.NewConfigError("recorder", err.Error())
	}
	rec := recorder.NewRecorder(store, recorder.DefaultConfig(), a.logger)
	closeFn := func() {
		rec.Close()
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close recorder storage", "error", err)
		}
	}
	return rec, store, closeFn, nil
}
