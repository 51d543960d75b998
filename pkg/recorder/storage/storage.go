package storage

import (
	"fmt"
	"log/slog"

	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/recorder"
)

// New returns the backend named by cfg.Backend.
func New(cfg *config.RecorderConfig, logger *slog.Logger) (recorder.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite", "":
		return NewSQLiteStorage(&cfg.SQLite, logger)
	default:
		return nil, fmt.Errorf("unknown recorder backend %q", cfg.Backend)
	}
}
