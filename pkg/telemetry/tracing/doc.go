// Package tracing provides OpenTelemetry tracing for triage runs.
//
// A run produces one span, with a child span per stage and per probe
// execution. Spans are exported over OTLP gRPC:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// With tracing disabled, New returns a noop tracer, and a nil *Tracer is
// also safe to call.
package tracing
