// Package telemetry wires the process's observability surface: a slog-backed
// core.Logger and an OpenTelemetry meter exposing call-lifecycle counters.
package telemetry

import (
	"log/slog"
	"os"

	"github.com/voxrelay/callbridge/pkg/core"
)

// SlogLogger adapts log/slog to core.Logger.
type SlogLogger struct {
	inner *slog.Logger
}

// NewLogger builds a JSON slog.Logger writing to stderr at the given level.
func NewLogger(level slog.Level) *SlogLogger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogLogger{inner: slog.New(handler)}
}

// With returns a logger that prefixes every record with the given attrs,
// e.g. the call ID, so a single call's log lines can be grepped together.
func (l *SlogLogger) With(args ...any) core.Logger {
	return &SlogLogger{inner: l.inner.With(args...)}
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

var (
	_ core.Logger       = (*SlogLogger)(nil)
	_ core.ScopedLogger = (*SlogLogger)(nil)
)
