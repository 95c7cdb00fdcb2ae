// Package log provides structured logging for the gravsim N-body engine. It
// wraps Go's log/slog with simulation-specific conveniences such as
// per-module child loggers and a Fatal level that runs the registered abort
// hook (§7's "abort protocol": a fatal error inside one worker should take
// the whole run down with a single exit code) instead of calling os.Exit
// directly.
package log

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with simulation-specific context.
type Logger struct {
	inner *slog.Logger
}

// AbortHook is invoked by Fatal/Fatalf after the message is logged. The
// default calls os.Exit(1); tests and the engine's abort-broadcast path
// (single-rank here, but named for the multi-rank protocol it stands in
// for) may replace it to observe fatal calls without killing the process.
var AbortHook func() = func() { os.Exit(1) }

// defaultLogger is the process-wide logger used by the package-level
// convenience functions.
var defaultLogger *Logger

func init() {
	defaultLogger = New(slog.LevelInfo)
}

// New creates a Logger that writes JSON to stderr at the given level.
func New(level slog.Level) *Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{inner: slog.New(h)}
}

// NewWithHandler creates a Logger backed by the supplied slog.Handler. This
// is useful for testing or for writing to a custom destination.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h)}
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// Module returns a child logger with an additional "module" attribute. This
// is the primary way subsystems (domain, tree, gravity, timeline, ...)
// obtain their own contextual logger.
func (l *Logger) Module(name string) *Logger {
	return &Logger{inner: l.inner.With("module", name)}
}

// With returns a child logger with additional key-value context.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, args ...any) { l.inner.Info(msg, args...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, args ...any) { l.inner.Warn(msg, args...) }

// Error logs at LevelError.
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// Fatal logs at LevelError (slog has no built-in fatal level) tagged
// fatal=true, then runs AbortHook. Matching §7's propagation policy, this
// is the only sanctioned way the core signals an unrecoverable error:
// configuration, resource exhaustion, timeline, snapshot, and numerical
// error kinds all route through here rather than calling os.Exit directly.
func (l *Logger) Fatal(msg string, args ...any) {
	l.inner.Error(msg, append(args, "fatal", true)...)
	AbortHook()
}

// Fatalf formats msg with args and logs it as Fatal. Provided for call
// sites that build a single free-form message instead of structured
// key-value pairs, matching the teacher's fmt.Errorf-heavy idiom
// elsewhere in this module.
func (l *Logger) Fatalf(format string, args ...any) {
	l.Fatal(fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Package-level convenience functions -- delegate to defaultLogger.
// ---------------------------------------------------------------------------

// Debug logs at LevelDebug using the default logger.
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

// Info logs at LevelInfo using the default logger.
func Info(msg string, args ...any) { defaultLogger.Info(msg, args...) }

// Warn logs at LevelWarn using the default logger.
func Warn(msg string, args ...any) { defaultLogger.Warn(msg, args...) }

// Error logs at LevelError using the default logger.
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

// Fatal logs at fatal severity using the default logger, then runs
// AbortHook.
func Fatal(msg string, args ...any) { defaultLogger.Fatal(msg, args...) }

// Fatalf formats and logs a fatal message using the default logger, then
// runs AbortHook.
func Fatalf(format string, args ...any) { defaultLogger.Fatalf(format, args...) }
