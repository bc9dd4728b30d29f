package logging

import (
	"context"
	"fmt"
	"log/slog"
)

type contextKey struct{}

var defaultLogger = NewLogger()

// WithLogger attaches logger to ctx for retrieval by the package-level
// Info/Debug/Warn/Error helpers.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the Logger attached to ctx, or a default stdout
// logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return defaultLogger
}

func wrapped(ctx context.Context) *wrappedLogger {
	l, ok := FromContext(ctx).(*wrappedLogger)
	if !ok {
		l = defaultLogger.(*wrappedLogger)
	}
	return l
}

// Debug logs at debug level through ctx's attached Logger.
func Debug(ctx context.Context, msg string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelDebug, withArgs(msg, args))
}

// Info logs at info level through ctx's attached Logger.
func Info(ctx context.Context, msg string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelInfo, withArgs(msg, args))
}

// Warn logs at warn level through ctx's attached Logger.
func Warn(ctx context.Context, msg string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelWarn, withArgs(msg, args))
}

// Error logs at error level through ctx's attached Logger.
func Error(ctx context.Context, msg string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelError, withArgs(msg, args))
}

// Debugf formats and logs at debug level through ctx's attached Logger.
func Debugf(ctx context.Context, format string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Infof formats and logs at info level through ctx's attached Logger.
func Infof(ctx context.Context, format string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf formats and logs at warn level through ctx's attached Logger.
func Warnf(ctx context.Context, format string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf formats and logs at error level through ctx's attached Logger.
func Errorf(ctx context.Context, format string, args ...any) {
	wrapped(ctx).logAt(callerSkip, slog.LevelError, fmt.Sprintf(format, args...))
}
