// Package telemetry wires logging, metrics and tracing for the triage
// engine from the telemetry section of the configuration.
//
//	tel, err := telemetry.New(&cfg.Telemetry, version, os.Stderr)
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	eng, err := engine.New(engine.DefaultEngineConfig().
//		WithLogger(tel.Logger()).
//		WithMetrics(tel.Metrics()).
//		WithTracer(tel.Tracer()))
//
// The subpackages can also be used on their own:
//
//   - logging: slog logger with run, artifact, stage and trace fields
//   - metrics: Prometheus collector for runs, stages and probes
//   - tracing: OpenTelemetry tracer with OTLP gRPC export
//   - health: liveness and readiness endpoints for watch mode
package telemetry
