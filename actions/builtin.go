package actions

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/nomis52/taskflow/logging"
	"github.com/nomis52/taskflow/workflow"
)

func builtins() map[string]Factory {
	stateless := func(fn workflow.ActionFunc) Factory {
		return func() workflow.Action { return fn }
	}
	return map[string]Factory{
		"value": stateless(valueAction),
		"upper": stateless(mapStrings(strings.ToUpper)),
		"lower": stateless(mapStrings(strings.ToLower)),
		"count": stateless(countAction),
		"join":  stateless(joinAction),
		"log":   stateless(logAction),
		"sleep": stateless(sleepAction),
		"fail":  func() workflow.Action { return &failAction{} },
	}
}

// valueAction returns the "value" parameter.
func valueAction(_ context.Context, params map[string]any) (any, error) {
	v, ok := params["value"]
	if !ok {
		return nil, workflow.Permanent(missingParam("value"))
	}
	return v, nil
}

// mapStrings applies fn to "input", a string or a list of strings.
func mapStrings(fn func(string) string) workflow.ActionFunc {
	return func(_ context.Context, params map[string]any) (any, error) {
		input, ok := params["input"]
		if !ok {
			return nil, workflow.Permanent(missingParam("input"))
		}
		if s, ok := input.(string); ok {
			return fn(s), nil
		}
		items, err := toStrings(input)
		if err != nil {
			return nil, workflow.Permanent(fmt.Errorf("input: %w", err))
		}
		out := make([]string, len(items))
		for i, s := range items {
			out[i] = fn(s)
		}
		return out, nil
	}
}

// countAction returns the length of "input". With "format" the count is
// rendered through it, e.g. "Loaded %d items".
func countAction(_ context.Context, params map[string]any) (any, error) {
	input, ok := params["input"]
	if !ok {
		return nil, workflow.Permanent(missingParam("input"))
	}

	v := reflect.ValueOf(input)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
	default:
		return nil, workflow.Permanent(fmt.Errorf("input: cannot count %T", input))
	}

	n := v.Len()
	if format, ok := params["format"].(string); ok && format != "" {
		return fmt.Sprintf(format, n), nil
	}
	return n, nil
}

// joinAction joins the strings in "input" with "separator" (default ", ").
func joinAction(_ context.Context, params map[string]any) (any, error) {
	items, err := toStrings(params["input"])
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("input: %w", err))
	}
	sep := ", "
	if s, ok := params["separator"].(string); ok {
		sep = s
	}
	return strings.Join(items, sep), nil
}

// logAction logs "message" with the task logger and returns it.
func logAction(ctx context.Context, params map[string]any) (any, error) {
	msg := fmt.Sprint(params["message"])
	level := "info"
	if l, ok := params["level"].(string); ok {
		level = l
	}
	slogLevel, err := logging.ParseLevel(level)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	logging.FromContext(ctx).Log(ctx, slogLevel, msg)
	return msg, nil
}

// sleepAction waits for "duration", then returns "value" if set.
func sleepAction(ctx context.Context, params map[string]any) (any, error) {
	d, err := toDuration(params["duration"])
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("duration: %w", err))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if v, ok := params["value"]; ok {
		return v, nil
	}
	return d.String(), nil
}

// failAction fails its first "times" invocations, then returns "value".
// A negative "times" fails forever; "permanent" stops retries.
type failAction struct {
	mu    sync.Mutex
	calls int
}

func (a *failAction) Invoke(_ context.Context, params map[string]any) (any, error) {
	times := 1
	if raw, ok := params["times"]; ok {
		n, err := toInt(raw)
		if err != nil {
			return nil, workflow.Permanent(fmt.Errorf("times: %w", err))
		}
		times = n
	}

	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()

	if times < 0 || call <= times {
		msg := "intentional failure"
		if m, ok := params["message"].(string); ok && m != "" {
			msg = m
		}
		err := fmt.Errorf("%s (attempt %d)", msg, call)
		if permanent, _ := params["permanent"].(bool); permanent {
			return nil, workflow.Permanent(err)
		}
		return nil, err
	}
	return params["value"], nil
}

func missingParam(name string) error {
	return fmt.Errorf("missing parameter %q", name)
}

func toStrings(v any) ([]string, error) {
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, not a string", i, item)
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("expected a list of strings")
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not a whole number", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		return time.ParseDuration(d)
	case nil:
		return 0, missingParam("duration")
	default:
		n, err := toInt(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Millisecond, nil
	}
}
