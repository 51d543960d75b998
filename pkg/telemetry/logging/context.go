package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	runIDKey contextKey = iota
	artifactKey
	stageKey
)

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run ID carried by ctx, if any.
func RunID(ctx context.Context) string {
	s, _ := ctx.Value(runIDKey).(string)
	return s
}

// WithArtifact adds the artifact digest or name to the context.
func WithArtifact(ctx context.Context, artifact string) context.Context {
	return context.WithValue(ctx, artifactKey, artifact)
}

// Artifact returns the artifact carried by ctx, if any.
func Artifact(ctx context.Context) string {
	s, _ := ctx.Value(artifactKey).(string)
	return s
}

// WithStage adds the current stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// Stage returns the stage carried by ctx, if any.
func Stage(ctx context.Context) string {
	s, _ := ctx.Value(stageKey).(string)
	return s
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if v := RunID(ctx); v != "" {
		attrs = append(attrs, slog.String("run_id", v))
	}
	if v := Artifact(ctx); v != "" {
		attrs = append(attrs, slog.String("artifact", v))
	}
	if v := Stage(ctx); v != "" {
		attrs = append(attrs, slog.String("stage", v))
	}
	return attrs
}
