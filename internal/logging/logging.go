// Package logging wraps log/slog with the handlers and contextual helpers
// used across the service.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with contextual field helpers.
type Logger struct {
	*slog.Logger
}

// New creates a logger. Format "json" emits JSON records; anything else
// gets the tinted console handler.
func New(level, format string) *Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// With returns a logger with additional key-value fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithRunID adds run_id to the logger context.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithNodeID adds node_id to the logger context.
func (l *Logger) WithNodeID(nodeID string) *Logger {
	return l.With("node_id", nodeID)
}

// WithWorker adds the worker index to the logger context.
func (l *Logger) WithWorker(id int) *Logger {
	return l.With("worker", id)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
