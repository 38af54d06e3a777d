// Package logging provides the process logger: a go-logger glog.Logger
// backed by log/slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// LevelTrace sits below slog's debug level.
const LevelTrace = slog.Level(-8)

// ParseLevel maps trace|debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
}

// New returns a logger writing text or json records to w (stderr when nil).
func New(level, format string, w io.Writer) (glog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q; use text|json", format)
	}
	return &Logger{slog: slog.New(h), ctx: context.Background()}, nil
}

// Logger adapts *slog.Logger to glog.Logger.
type Logger struct {
	slog *slog.Logger
	ctx  context.Context
}

var _ glog.Logger = (*Logger)(nil)

func (l *Logger) Trace(msg string, args ...any) { l.slog.Log(l.ctx, LevelTrace, msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.slog.DebugContext(l.ctx, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.InfoContext(l.ctx, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.WarnContext(l.ctx, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.ErrorContext(l.ctx, msg, args...) }

// Fatal logs at error level and exits the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.slog.ErrorContext(l.ctx, msg, args...)
	os.Exit(1)
}

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Logger{slog: l.slog, ctx: ctx}
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), ctx: l.ctx}
}

// Named tags records with a component name.
func Named(logger glog.Logger, component string) glog.Logger {
	if l, ok := logger.(*Logger); ok {
		return l.With("component", component)
	}
	if logger == nil {
		return glog.Nop()
	}
	return logger
}

// StdWriter routes writes from the standard library logger (used by chi's
// request logger and net/http) into logger at info level.
func StdWriter(logger glog.Logger) io.Writer {
	return stdWriter{logger: logger}
}

type stdWriter struct{ logger glog.Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
