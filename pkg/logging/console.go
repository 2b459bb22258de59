// Package logging provides the slog handler used for shell output.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/muesli/termenv"
)

// Severities used by the shell on top of the standard slog levels.
const (
	LevelGood  = slog.LevelInfo + 1
	LevelFatal = slog.LevelError + 4
)

// ConsoleHandler is an slog.Handler that prints one line per record
// containing only the message and its attributes. Lines are coloured by
// level when the writer is a colour-capable terminal.
type ConsoleHandler struct {
	mu     *sync.Mutex
	out    *termenv.Output
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewConsoleHandler creates a handler writing to w. Records below level are
// discarded.
func NewConsoleHandler(w io.Writer, level slog.Leveler, opts ...termenv.OutputOption) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{
		mu:    &sync.Mutex{},
		out:   termenv.NewOutput(w, opts...),
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	line := h.colorize(r.Level, formatRecord(r, h.attrs, h.groups))

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line+"\n")
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

func (h *ConsoleHandler) colorize(level slog.Level, msg string) string {
	style := h.out.String(msg)
	switch {
	case level >= LevelFatal:
		style = style.Foreground(h.out.Color("1")).Bold()
	case level >= slog.LevelError:
		style = style.Foreground(h.out.Color("1"))
	case level >= slog.LevelWarn:
		style = style.Foreground(h.out.Color("3"))
	case level >= LevelGood:
		style = style.Foreground(h.out.Color("2"))
	case level < slog.LevelInfo:
		style = style.Faint()
	default:
		return msg
	}
	return style.String()
}

// formatRecord produces the message followed by key=value attributes.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		return true
	})

	return b.String()
}
