package logging

import (
	"context"
	"errors"
	"log/slog"
)

// TeeHandler is an slog.Handler that forwards every record to several
// handlers, typically the console and a transcript file. Each handler
// applies its own level.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler wraps handlers. Nil handlers are skipped.
func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	h := &TeeHandler{}
	for _, hh := range handlers {
		if hh != nil {
			h.handlers = append(h.handlers, hh)
		}
	}
	return h
}

// Enabled implements slog.Handler.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &TeeHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, hh := range h.handlers {
		out.handlers[i] = hh.WithAttrs(attrs)
	}
	return out
}

// WithGroup implements slog.Handler.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	out := &TeeHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, hh := range h.handlers {
		out.handlers[i] = hh.WithGroup(name)
	}
	return out
}
