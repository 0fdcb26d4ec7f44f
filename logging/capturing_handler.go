package logging

import (
	"context"
	"log/slog"
	"maps"
)

// CapturingHandler wraps an slog.Handler, storing every record in a
// LogCollector under a task name while passing it through.
type CapturingHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	task       string
	attrs      map[string]any // accumulated WithAttrs values, nested by group
	groups     []string       // open groups, outermost first
}

// NewCapturingHandler creates a handler that captures records for task.
func NewCapturingHandler(underlying slog.Handler, collector *LogCollector, task string) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		task:       task,
		attrs:      map[string]any{},
	}
}

// Enabled always returns true so records below the underlying handler's
// level are still captured. Handle only forwards what the underlying
// handler accepts.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle stores the record and forwards it to the underlying handler.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := cloneAttrs(h.attrs)
	target := groupMap(attrs, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	h.collector.AddLog(h.task, LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: attrs,
	})

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

// WithAttrs returns a CapturingHandler so capturing survives .With() chains.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := cloneAttrs(h.attrs)
	target := groupMap(next, h.groups)
	for _, a := range attrs {
		addAttr(target, a)
	}

	return &CapturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		collector:  h.collector,
		task:       h.task,
		attrs:      next,
		groups:     h.groups,
	}
}

// WithGroup returns a CapturingHandler so capturing survives .WithGroup() chains.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)

	return &CapturingHandler{
		underlying: h.underlying.WithGroup(name),
		collector:  h.collector,
		task:       h.task,
		attrs:      h.attrs,
		groups:     groups,
	}
}

// groupMap returns the nested map for groups inside m, creating it as needed.
func groupMap(m map[string]any, groups []string) map[string]any {
	for _, g := range groups {
		child, ok := m[g].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[g] = child
		}
		m = child
	}
	return m
}

func addAttr(m map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		target := m
		if a.Key != "" {
			target = groupMap(m, []string{a.Key})
		}
		for _, ga := range attrs {
			addAttr(target, ga)
		}
		return
	}
	m[a.Key] = resolveValue(a.Value)
}

// cloneAttrs deep-copies nested group maps so handlers never share them.
func cloneAttrs(m map[string]any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range out {
		if child, ok := v.(map[string]any); ok {
			out[k] = cloneAttrs(child)
		}
	}
	return out
}

// resolveValue converts a slog.Value to a JSON-serializable value.
func resolveValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
