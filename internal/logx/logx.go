// Package logx provides the named, leveled, structured log sink shared by
// every component. It is a thin wrapper over log/slog rather than a
// bespoke logging abstraction.
package logx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// LevelTrace sits below slog.LevelDebug. The service core logs swallowed
// cancellations at this level.
const LevelTrace slog.Level = slog.LevelDebug - 4

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: LevelTrace,
	})))
}

// Logger binds a component name to every record it emits.
type Logger struct {
	base *slog.Logger
	name string
}

// Named returns a Logger for the given component, e.g. logx.Named("service.stt").
func Named(name string) *Logger {
	return &Logger{base: slog.Default().With("component", name), name: name}
}

// With returns a derived Logger carrying additional always-on attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...), name: l.name}
}

func (l *Logger) Name() string { return l.name }

func (l *Logger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if !l.base.Enabled(context.Background(), level) {
		return
	}
	l.base.Log(context.Background(), level, msg, args...)
}

// lazyStringer defers an expensive String() call until a handler actually
// formats the record, which only happens once Enabled() has passed.
type lazyStringer struct{ fn func() string }

func (l lazyStringer) String() string { return l.fn() }

// Lazy wraps fn so its result is only computed if the record's level is
// enabled. Use for expensive attrs, e.g. logx.Lazy(func() string { return t.String() }).
func Lazy(fn func() string) fmt.Stringer {
	return lazyStringer{fn: fn}
}
