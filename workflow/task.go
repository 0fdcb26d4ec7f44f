package workflow

import (
	"context"
	"fmt"
	"time"
)

// Action is the unit of work a Task performs.
//
// IMPLEMENTATION CONTRACT:
// - Invoke receives the task's parameters with every reference already resolved
// - Return the task's output on success, or an error describing the failure
// - Wrap an error with Permanent() to stop further retries
// - Invoke may be called concurrently with other actions and must handle
//   context cancellation (per-attempt timeout, workflow abort)
type Action interface {
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// ActionFunc adapts an ordinary function to the Action interface.
type ActionFunc func(ctx context.Context, params map[string]any) (any, error)

// Invoke calls f(ctx, params).
func (f ActionFunc) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Param is a declared task parameter. It is either a literal value, passed to
// the action unchanged, or a reference to the output of another task.
type Param struct {
	value any
	ref   string
	isRef bool
}

// Literal returns a parameter holding v.
func Literal(v any) Param {
	return Param{value: v}
}

// Ref returns a parameter that resolves to the output of the named task.
// The task must appear in the referencing task's DependsOn.
func Ref(task string) Param {
	return Param{ref: task, isRef: true}
}

// IsRef reports whether p references another task's output.
func (p Param) IsRef() bool {
	return p.isRef
}

// RefTask returns the referenced task name, or "" for literals.
func (p Param) RefTask() string {
	return p.ref
}

// Value returns the literal value, or nil for references.
func (p Param) Value() any {
	return p.value
}

// String renders references in definition file syntax.
func (p Param) String() string {
	if p.IsRef() {
		return fmt.Sprintf("${tasks.%s.output}", p.ref)
	}
	return fmt.Sprintf("%v", p.value)
}

// Literals builds a parameter map where every value is a literal.
func Literals(values map[string]any) map[string]Param {
	params := make(map[string]Param, len(values))
	for k, v := range values {
		params[k] = Literal(v)
	}
	return params
}

// Task is the immutable description of one unit of work.
type Task struct {
	// Name identifies the task; unique within a workflow.
	Name string

	// Action is invoked with the resolved parameters.
	Action Action

	// Params maps parameter names to literals or references.
	Params map[string]Param

	// DependsOn lists the tasks that must succeed before this one runs.
	DependsOn []string

	// Retry controls how many extra attempts a failing action gets.
	Retry RetryPolicy

	// Timeout bounds a single attempt. Zero disables it.
	Timeout time.Duration
}

// validate checks the fields that can be verified without the rest of the workflow.
func (t Task) validate() error {
	if t.Name == "" {
		return &InvalidTaskError{Reason: "task name is required"}
	}
	if t.Action == nil {
		return &InvalidTaskError{Task: t.Name, Reason: "action is required"}
	}
	if t.Retry.Count < 0 {
		return &InvalidTaskError{Task: t.Name, Reason: fmt.Sprintf("retry count must not be negative, got %d", t.Retry.Count)}
	}
	if t.Retry.Delay < 0 || t.Retry.MaxDelay < 0 {
		return &InvalidTaskError{Task: t.Name, Reason: "retry delays must not be negative"}
	}
	if err := t.Retry.Backoff.validate(); err != nil {
		return &InvalidTaskError{Task: t.Name, Reason: err.Error()}
	}
	if t.Timeout < 0 {
		return &InvalidTaskError{Task: t.Name, Reason: "timeout must not be negative"}
	}
	return nil
}

// clone returns a copy that shares no maps or slices with t, so later changes
// by the caller cannot alter a registered task.
func (t Task) clone() Task {
	c := t
	if t.Params != nil {
		c.Params = make(map[string]Param, len(t.Params))
		for k, v := range t.Params {
			c.Params[k] = v
		}
	}
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return c
}
