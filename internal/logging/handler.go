package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns attributes describing what is running right now,
// such as the active session. It is called once per record.
type ContextProvider func() []slog.Attr

// sessionHandler stamps every record with the provider's current attributes.
// Records logged outside a session pass through untouched.
type sessionHandler struct {
	next     slog.Handler
	provider ContextProvider
}

func (h sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h sessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := h.provider(); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return sessionHandler{next: h.next.WithAttrs(attrs), provider: h.provider}
}

func (h sessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return sessionHandler{next: h.next.WithGroup(name), provider: h.provider}
}

// fanout writes each record to every sink enabled for its level: the log
// file or console, and Graylog when shipping is on.
type fanout []slog.Handler

func newFanout(sinks ...slog.Handler) fanout {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers to every sink even if one fails and reports all failures.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
