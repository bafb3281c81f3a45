package internal

import "log/slog"

// Logger is embedded by components that want optional structured logging:
// a zero-value Logger with a nil *slog.Logger discards everything, so
// callers never need a nil check before logging.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) Error(msg string, attrs ...slog.Attr) { LogAttrs(l.Log, slog.LevelError, msg, attrs...) }
func (l Logger) Warn(msg string, attrs ...slog.Attr)  { LogAttrs(l.Log, slog.LevelWarn, msg, attrs...) }
func (l Logger) Info(msg string, attrs ...slog.Attr)  { LogAttrs(l.Log, slog.LevelInfo, msg, attrs...) }
func (l Logger) Debug(msg string, attrs ...slog.Attr) { LogAttrs(l.Log, slog.LevelDebug, msg, attrs...) }
