// Package logging provides the component-scoped structured logger used
// across the tunnel core, mirroring the call shape of the teacher's own
// logging.Logger (New, WithComponent, leveled Info/Warn/Error with
// key/value pairs) on top of the standard library's log/slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls how a Logger renders output.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	JSON   bool
	Output io.Writer
}

// DefaultConfig returns the default logging configuration: info level,
// human-readable text, stderr.
func DefaultConfig() Config {
	return Config{Level: "info", JSON: false, Output: os.Stderr}
}

// Logger wraps an *slog.Logger with a fixed component name.
type Logger struct {
	base *slog.Logger
}

var defaultLogger = New(DefaultConfig())

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}
	return &Logger{base: slog.New(handler)}
}

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

// SetDefault installs l as the package-level default logger returned by
// Default().
func SetDefault(l *Logger) { defaultLogger = l }

// Default returns the package-level default logger.
func Default() *Logger { return defaultLogger }

// WithComponent returns a child logger tagging every record with
// component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{base: l.base.With("component", name)}
}

// With returns a child logger with additional fixed key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{base: l.base.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.base.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.base.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.base.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.base.Error(msg, kv...) }

// DebugContext/InfoContext/WarnContext/ErrorContext propagate a context so
// that slog handlers which read span/trace attributes out of it still work.
func (l *Logger) DebugContext(ctx context.Context, msg string, kv ...any) {
	l.base.DebugContext(ctx, msg, kv...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, kv ...any) {
	l.base.InfoContext(ctx, msg, kv...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, kv ...any) {
	l.base.WarnContext(ctx, msg, kv...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, kv ...any) {
	l.base.ErrorContext(ctx, msg, kv...)
}

// Slog exposes the underlying *slog.Logger for callers that need it
// directly (e.g. to pass to a library that accepts one).
func (l *Logger) Slog() *slog.Logger { return l.base }
