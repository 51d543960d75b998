package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/telemetry/logging"
	"mercator-hq/triage/pkg/telemetry/metrics"
	"mercator-hq/triage/pkg/telemetry/tracing"
)

// Telemetry bundles the logger, metrics collector and tracer built from
// one TelemetryConfig.
type Telemetry struct {
	logger    *slog.Logger
	collector *metrics.Collector
	tracer    *tracing.Tracer
	textfile  string
}

// New builds telemetry from cfg. Logs go to w.
func New(cfg *config.TelemetryConfig, version string, w io.Writer) (*Telemetry, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Logging, w))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tracer, err := tracing.New(&cfg.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	return &Telemetry{
		logger:    logger,
		collector: metrics.NewCollector(&cfg.Metrics, prometheus.NewRegistry()),
		tracer:    tracer,
		textfile:  cfg.Metrics.TextfilePath,
	}, nil
}

// Logger returns the structured logger.
func (t *Telemetry) Logger() *slog.Logger { return t.logger }

// Metrics returns the metrics collector.
func (t *Telemetry) Metrics() *metrics.Collector { return t.collector }

// Tracer returns the tracer.
func (t *Telemetry) Tracer() *tracing.Tracer { return t.tracer }

// Shutdown flushes spans and, when configured, writes the metrics textfile.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.tracer.Shutdown(ctx),
		t.collector.WriteTextfile(t.textfile),
	)
}
