// Package logging provides the structured logger shared by vecmem packages.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecmem-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSON creates a Logger that outputs JSON-formatted logs.
func NewJSON(level slog.Level) *Logger {
	return New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewText creates a Logger that outputs human-readable text logs.
func NewText(level slog.Level) *Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Noop creates a Logger that discards all log output.
func Noop() *Logger {
	return New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// OrNoop returns l, or a discarding logger when l is nil.
func OrNoop(l *Logger) *Logger {
	if l == nil {
		return Noop()
	}
	return l
}

// WithBackend tags the logger with a backend type.
func (l *Logger) WithBackend(typ string) *Logger {
	return &Logger{Logger: l.Logger.With("backend", typ)}
}

// WithTenant tags the logger with the tenant keys that are set.
func (l *Logger) WithTenant(userID, conversationID string) *Logger {
	lg := l.Logger
	if userID != "" {
		lg = lg.With("user_id", userID)
	}
	if conversationID != "" {
		lg = lg.With("conversation_id", conversationID)
	}
	return &Logger{Logger: lg}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(ctx context.Context, id string, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"id", id,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"id", id,
			"dimension", dimension,
		)
	}
}

// LogSeed logs a bulk seed operation.
func (l *Logger) LogSeed(ctx context.Context, count, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "seed completed with failures",
			"total", count,
			"failed", failed,
			"success", count-failed,
		)
	} else {
		l.InfoContext(ctx, "seed completed",
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, limit, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"limit", limit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"limit", limit,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", id,
		)
	}
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, op, key string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot "+op+" failed",
			"key", key,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot "+op+" completed",
			"key", key,
			"records", records,
		)
	}
}
