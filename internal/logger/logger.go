// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// jobNameKey is the context key for the job a log line belongs to.
type jobNameKey struct{}

// New creates a new structured JSON logger. Diagnostics go to stderr so
// they never interleave with followed job output on stdout.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithJobName returns a new context carrying the given job name.
func WithJobName(ctx context.Context, jobName string) context.Context {
	return context.WithValue(ctx, jobNameKey{}, jobName)
}

// JobNameFromContext extracts the job name from the context.
func JobNameFromContext(ctx context.Context) string {
	if v := ctx.Value(jobNameKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// FromContext returns a logger with context fields (job name, etc.) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if jobName := JobNameFromContext(ctx); jobName != "" {
		return base.With("job", jobName)
	}
	return base
}
