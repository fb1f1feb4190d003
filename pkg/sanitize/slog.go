package sanitize

import (
	"context"
	"log/slog"
)

// WrapLogger replaces the default slog handler with one that redacts every
// string attribute and message through the process-wide sanitizer.
// Idempotent: an already-wrapped handler is not wrapped again.
func WrapLogger() {
	if _, wrapped := slog.Default().Handler().(*redactingHandler); wrapped {
		return
	}
	slog.SetDefault(slog.New(&redactingHandler{
		inner:     slog.Default().Handler(),
		sanitizer: defaultSanitizer,
	}))
}

// redactingHandler sanitizes the record message and all string attribute
// values before delegating to the wrapped handler.
type redactingHandler struct {
	inner     slog.Handler
	sanitizer *Sanitizer
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, h.sanitizer.Sanitize(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.sanitizeAttr(a)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(clean), sanitizer: h.sanitizer}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name), sanitizer: h.sanitizer}
}

func (h *redactingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.sanitizer.Sanitize(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, 0, len(group))
		for _, ga := range group {
			clean = append(clean, h.sanitizeAttr(ga))
		}
		return slog.Group(a.Key, clean...)
	default:
		return a
	}
}
