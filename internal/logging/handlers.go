package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider supplies attributes that are stamped onto every record,
// typically the current session identity.
type ContextProvider func() []slog.Attr

// fanout duplicates each record to every sink: console, log file and the
// OTel bridge when enabled.
type fanout []slog.Handler

func newFanout(hs ...slog.Handler) fanout {
	var f fanout
	for _, h := range hs {
		if h != nil {
			f = append(f, h)
		}
	}
	return f
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled sink. A failing sink does
// not stop delivery to the others.
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
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}

// stamped decorates a handler with provider-supplied attributes. The
// provider runs per record, so the attributes track session changes
// without rebuilding the logger.
type stamped struct {
	next     slog.Handler
	provider ContextProvider
}

func stampWith(next slog.Handler, provider ContextProvider) *stamped {
	return &stamped{next: next, provider: provider}
}

func (s *stamped) Enabled(ctx context.Context, level slog.Level) bool {
	return s.next.Enabled(ctx, level)
}

func (s *stamped) Handle(ctx context.Context, r slog.Record) error {
	if s.provider != nil {
		r.AddAttrs(s.provider()...)
	}
	return s.next.Handle(ctx, r)
}

func (s *stamped) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stamped{next: s.next.WithAttrs(attrs), provider: s.provider}
}

func (s *stamped) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return &stamped{next: s.next.WithGroup(name), provider: s.provider}
}
