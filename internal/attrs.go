package internal

import (
	"context"
	"log/slog"
)

// SlogVirtualIP returns a slog.Attr for a link's virtual-IP label.
func SlogVirtualIP(label string) slog.Attr {
	return slog.String("virtual_ip", label)
}

// SlogLink returns the pair of attrs that identify a link in a log line:
// its externally meaningful virtual-IP label and its internal
// log-correlation id (see Link identity, SPEC_FULL.md §3).
func SlogLink(virtualIP string, correlationID string) []slog.Attr {
	return []slog.Attr{
		slog.String("virtual_ip", virtualIP),
		slog.String("link_id", correlationID),
	}
}

// LogAttrs is a tiny adapter so callers can pass slog.Attr values into
// a (possibly nil) *slog.Logger without constructing a context each time.
func LogAttrs(log *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if log == nil {
		return
	}
	log.LogAttrs(context.Background(), level, msg, attrs...)
}
