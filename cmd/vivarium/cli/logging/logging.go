// Package logging wraps log/slog with context-carried component tags.
//
// Every subsystem calls WithComponent once and passes the returned context
// down; the helpers then stamp each record with the component name so a
// single daemon log can be filtered per concern.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

type componentKey struct{}

var (
	mu      sync.RWMutex
	logger  *slog.Logger
	level   = new(slog.LevelVar)
	levelFn func() slog.Level
)

// Init configures the process-wide logger. On a terminal stderr it uses the
// human-readable text handler; otherwise JSON for log shippers.
func Init(logLevel string) error {
	mu.Lock()
	defer mu.Unlock()

	level.Set(parseLevel(logLevel))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
	return nil
}

// SetLogLevelGetter installs a callback consulted on every log call,
// allowing settings reloads to change verbosity without re-Init.
func SetLogLevelGetter(fn func() slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	levelFn = fn
}

// Close flushes the logger. Present for symmetry with Init; stderr needs
// no flushing today.
func Close() {}

// WithComponent returns a context whose log records carry component=name.
func WithComponent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, componentKey{}, name)
}

// Debug logs at DEBUG with the context's component tag.
func Debug(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelDebug, msg, attrs...)
}

// Info logs at INFO with the context's component tag.
func Info(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs at WARN with the context's component tag.
func Warn(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelWarn, msg, attrs...)
}

// Error logs at ERROR with the context's component tag.
func Error(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelError, msg, attrs...)
}

// LogDuration logs msg with a duration_ms attribute measured from start.
func LogDuration(ctx context.Context, lvl slog.Level, msg string, start time.Time, attrs ...any) {
	attrs = append(attrs, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	log(ctx, lvl, msg, attrs...)
}

func log(ctx context.Context, lvl slog.Level, msg string, attrs ...any) {
	mu.RLock()
	l := logger
	fn := levelFn
	mu.RUnlock()
	if l == nil {
		l = slog.Default()
	}
	if fn != nil && lvl < fn() {
		return
	}
	if name, ok := ctx.Value(componentKey{}).(string); ok {
		attrs = append(attrs, slog.String("component", name))
	}
	l.Log(ctx, lvl, msg, attrs...)
}

func parseLevel(s string) slog.Level {
	switch s {
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
