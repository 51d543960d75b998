package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/triage/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Enabled() {
		t.Error("expected disabled tracer")
	}
	_, span := tr.Start(context.Background(), "op")
	if span.SpanContext().IsValid() {
		t.Error("noop tracer produced a valid span")
	}
	span.End()
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, "test"); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewWithExporter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := &config.TracingConfig{Enabled: true, Sampler: SamplerAlways, ServiceName: "triage-test"}

	tr, err := NewWithExporter(cfg, "v0", sdktrace.WithSyncer(exporter))
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	defer func() { _ = tr.Shutdown(context.Background()) }()

	ctx, parent := tr.Start(context.Background(), "run")
	_, child := tr.Start(ctx, "stage")
	child.SetAttributes(AttrStage.String("ingest"))
	SetStatus(child, errors.New("boom"))
	child.End()
	parent.End()

	if TraceID(ctx) == "" {
		t.Error("expected trace ID in context")
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("exported %d spans, want 2", len(spans))
	}
	if spans[0].Name != "stage" || spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Errorf("unexpected span tree: %q parent %v", spans[0].Name, spans[0].Parent.SpanID())
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("child status = %v, want Error", spans[0].Status.Code)
	}
}

func TestNilTracer(t *testing.T) {
	var tr *Tracer
	_, span := tr.Start(context.Background(), "op")
	span.End()
	if tr.Enabled() {
		t.Error("nil tracer reported enabled")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{"always", SamplerAlways, 0, false},
		{"never", SamplerNever, 0, false},
		{"ratio", SamplerRatio, 0.5, false},
		{"ratio negative", SamplerRatio, -0.1, true},
		{"ratio above one", SamplerRatio, 1.5, true},
		{"unknown", "sometimes", 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Error("expected sampler")
			}
		})
	}
}
