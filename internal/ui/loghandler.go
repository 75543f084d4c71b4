package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LogHandler is a slog.Handler that forwards records into the dashboard's
// activity log, so pipeline logging shows up in the TUI instead of
// corrupting the alternate screen.
type LogHandler struct {
	dash  *Dashboard
	level slog.Level
	attrs []slog.Attr
}

// NewLogHandler creates a handler writing into d at or above level.
func NewLogHandler(d *Dashboard, level slog.Level) *LogHandler {
	return &LogHandler{dash: d, level: level}
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})

	h.dash.AddLog(r.Level.String(), b.String())
	return nil
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &LogHandler{dash: h.dash, level: h.level, attrs: merged}
}

// WithGroup is accepted but flattened; the log panel is a single line per
// record and group prefixes only add noise there.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	return h
}
