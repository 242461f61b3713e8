package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/FortiumPartners/devpulse/common/middleware"
)

// Logger is a thin wrapper over slog.Logger that knows how to pull
// per-request attributes out of a context before emitting a record.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to stdout at the given level. The format is
// either "text" or "json"; anything else falls back to JSON.
func New(level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		// Source locations only when the floor is at error, to keep the
		// common path cheap.
		AddSource: level <= slog.LevelError,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Default wraps the process-wide slog.Default.
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// WithContext returns an slog.Logger carrying the request ID from ctx,
// when the middleware put one there.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		return l.Logger.With(slog.String("request_id", reqID))
	}
	return l.Logger
}

// InfoContext logs at info level, attaching request-scoped attributes.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).InfoContext(ctx, msg, args...)
}

// WarnContext logs at warn level, attaching request-scoped attributes.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).WarnContext(ctx, msg, args...)
}

// ErrorContext logs at error level, attaching request-scoped attributes.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).ErrorContext(ctx, msg, args...)
}

// DebugContext logs at debug level, attaching request-scoped attributes.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).DebugContext(ctx, msg, args...)
}

// With returns a Logger whose records all carry the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ParseLevel maps "debug", "info", "warn" or "error" to the matching
// slog.Level. Unrecognized strings resolve to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault installs l as the slog default, which also routes the
// standard log package through it.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
