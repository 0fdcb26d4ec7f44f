package workflow

import (
	"context"
	"fmt"
	"log/slog"
)

// StartHook is called once before the first task is dispatched.
type StartHook func(ctx context.Context) error

// CompleteHook is called once at the end of a run with the full result.
type CompleteHook func(ctx context.Context, result *WorkflowResult) error

// FailureHook is called once when a run ends Failed or Aborted.
type FailureHook func(ctx context.Context, err error) error

// TaskFailureHook is called once for every task that ends Failed.
type TaskFailureHook func(ctx context.Context, task string, err error) error

// hooks holds the lifecycle callbacks registered on a Workflow.
// Hooks for the same event run in registration order.
type hooks struct {
	onStart       []StartHook
	onComplete    []CompleteHook
	onFailure     []FailureHook
	onTaskFailure []TaskFailureHook
}

func (h *hooks) clone() hooks {
	return hooks{
		onStart:       append([]StartHook(nil), h.onStart...),
		onComplete:    append([]CompleteHook(nil), h.onComplete...),
		onFailure:     append([]FailureHook(nil), h.onFailure...),
		onTaskFailure: append([]TaskFailureHook(nil), h.onTaskFailure...),
	}
}

func (h *hooks) start(ctx context.Context, logger *slog.Logger) {
	for i, hook := range h.onStart {
		callHook(logger, "start", i, func() error { return hook(ctx) })
	}
}

func (h *hooks) complete(ctx context.Context, logger *slog.Logger, result *WorkflowResult) {
	for i, hook := range h.onComplete {
		callHook(logger, "complete", i, func() error { return hook(ctx, result) })
	}
}

func (h *hooks) failure(ctx context.Context, logger *slog.Logger, err error) {
	for i, hook := range h.onFailure {
		callHook(logger, "failure", i, func() error { return hook(ctx, err) })
	}
}

func (h *hooks) taskFailure(ctx context.Context, logger *slog.Logger, task string, err error) {
	for i, hook := range h.onTaskFailure {
		callHook(logger.With("task", task), "task_failure", i, func() error { return hook(ctx, task, err) })
	}
}

// callHook runs fn, logging its error or recovered panic.
func callHook(logger *slog.Logger, event string, index int, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("hook panicked", "event", event, "hook", index, "panic", fmt.Sprint(p))
		}
	}()
	if err := fn(); err != nil {
		logger.Warn("hook failed", "event", event, "hook", index, "error", err)
	}
}
