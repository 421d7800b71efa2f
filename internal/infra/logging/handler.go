// Package logging wraps slog with context-carried attributes so every log
// line emitted during a request or a worker task automatically includes
// its correlation ID without explicit passing at every call site.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey string

// AttrsKey is the context key under which carried log attributes live.
const AttrsKey ctxKey = "docgen_log_attrs"

// ContextHandler is a slog.Handler that pulls attributes out of the
// request/task context and appends them to every record it handles.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(AttrsKey).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs returns a context carrying attrs in addition to any already
// present, for automatic inclusion in every subsequent log line.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing, _ := ctx.Value(AttrsKey).([]slog.Attr)
	merged := append(append([]slog.Attr(nil), existing...), attrs...)
	return context.WithValue(ctx, AttrsKey, merged)
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// CorrelationID extracts the correlation ID carried in ctx, or "" if none
// has been attached yet.
func CorrelationID(ctx context.Context) string {
	attrs, ok := ctx.Value(AttrsKey).([]slog.Attr)
	if !ok {
		return ""
	}
	for _, a := range attrs {
		if a.Key == "correlation_id" {
			return a.Value.String()
		}
	}
	return ""
}
