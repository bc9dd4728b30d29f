// Package logging wraps log/slog behind a small Logger interface whose
// Option-constructed instances always report the caller's source
// location, not this package's own call sites.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Logger is the logging surface every component depends on instead of
// log/slog directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

type options struct {
	debug   bool
	format  string
	writer  io.Writer
	quiet   bool
	logFile string
}

// Option configures NewLogger.
type Option func(*options)

// WithDebug enables debug-level logging and source-location attribution.
func WithDebug() Option { return func(o *options) { o.debug = true } }

// WithFormat selects "text" (the default) or "json" output.
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithWriter adds an additional destination (e.g. a per-run log file)
// alongside the console.
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithQuiet suppresses the console echo, writing only to the
// destination(s) set by WithWriter/WithLogFile.
func WithQuiet() Option { return func(o *options) { o.quiet = true } }

// WithLogFile opens path (creating parent directories as needed) and
// adds it as an additional destination.
func WithLogFile(path string) Option { return func(o *options) { o.logFile = path } }

// NewLogger builds a Logger from opts. With neither WithWriter nor
// WithLogFile, it logs to stdout unless WithQuiet silences it entirely.
func NewLogger(opts ...Option) Logger {
	cfg := options{format: "text"}
	for _, opt := range opts {
		opt(&cfg)
	}

	var destinations []io.Writer
	if cfg.writer != nil {
		destinations = append(destinations, cfg.writer)
	}
	if cfg.logFile != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.logFile), 0o755)
		if f, err := openFile(cfg.logFile); err == nil {
			destinations = append(destinations, f)
		}
	}
	if !cfg.quiet {
		destinations = append(destinations, os.Stdout)
	}

	var dest io.Writer = io.Discard
	if len(destinations) == 1 {
		dest = destinations[0]
	} else if len(destinations) > 1 {
		dest = io.MultiWriter(destinations...)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.debug}

	var handler slog.Handler
	if cfg.format == "json" {
		handler = slog.NewJSONHandler(dest, handlerOpts)
	} else {
		handler = slog.NewTextHandler(dest, handlerOpts)
	}

	return &wrappedLogger{handler: handler}
}

type wrappedLogger struct {
	handler slog.Handler
}

const callerSkip = 3

func (l *wrappedLogger) logAt(skip int, level slog.Level, msg string) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	_ = l.handler.Handle(ctx, r)
}

func (l *wrappedLogger) Debug(msg string, args ...any) { l.logAt(callerSkip, slog.LevelDebug, withArgs(msg, args)) }
func (l *wrappedLogger) Info(msg string, args ...any)  { l.logAt(callerSkip, slog.LevelInfo, withArgs(msg, args)) }
func (l *wrappedLogger) Warn(msg string, args ...any)  { l.logAt(callerSkip, slog.LevelWarn, withArgs(msg, args)) }
func (l *wrappedLogger) Error(msg string, args ...any) { l.logAt(callerSkip, slog.LevelError, withArgs(msg, args)) }

func (l *wrappedLogger) Debugf(format string, args ...any) {
	l.logAt(callerSkip, slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (l *wrappedLogger) Infof(format string, args ...any) {
	l.logAt(callerSkip, slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (l *wrappedLogger) Warnf(format string, args ...any) {
	l.logAt(callerSkip, slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (l *wrappedLogger) Errorf(format string, args ...any) {
	l.logAt(callerSkip, slog.LevelError, fmt.Sprintf(format, args...))
}

func (l *wrappedLogger) With(args ...any) Logger {
	return &wrappedLogger{handler: l.handler.WithAttrs(argsToAttrs(args))}
}

func (l *wrappedLogger) WithGroup(name string) Logger {
	return &wrappedLogger{handler: l.handler.WithGroup(name)}
}

// withArgs appends key/value pairs to msg inline since slog.Record's
// structured Add path would otherwise require per-call-site attr
// construction; this keeps the simple (msg, "key", val, ...) call shape
// every component already uses.
func withArgs(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	for i := 0; i+1 < len(args); i += 2 {
		msg += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	return msg
}

func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}
