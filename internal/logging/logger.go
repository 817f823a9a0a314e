// Package logging provides structured logging configuration using log/slog.
//
// This package integrates with chi's RequestID middleware to propagate
// request IDs through structured log entries, so every line written while
// handling an upload can be correlated with the error details returned to
// the client.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json", "tint" (default: "text")
//
// "tint" writes colorized console output to stderr and is meant for local
// development; color is disabled when stderr is not a terminal.
func Setup(level, format string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, os.Stderr, level, format)))
}

// NewHandler builds the handler Setup installs. text and json write to out,
// tint writes to console.
func NewHandler(out io.Writer, console *os.File, level, format string) slog.Handler {
	lvl := parseLevel(level)

	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	case "tint":
		return tint.NewHandler(colorable.NewColorable(console), &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05.000",
			NoColor:    !isatty.IsTerminal(console.Fd()),
		})
	default:
		return slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})
	}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns a logger enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger automatically includes request_id in all log entries.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	tableLogger := logging.WithFields(ctx, "table", name)
//	tableLogger.Warn("table skipped", "error", err)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// Since returns the elapsed milliseconds since start, for duration_ms fields.
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
