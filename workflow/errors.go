package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrWorkflowStarted is returned by AddTask once the workflow has been run.
var ErrWorkflowStarted = errors.New("workflow has already started running")

// InvalidTaskError reports a task definition that cannot be registered.
type InvalidTaskError struct {
	Task   string
	Reason string
}

func (e *InvalidTaskError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("invalid task: %s", e.Reason)
	}
	return fmt.Sprintf("invalid task %q: %s", e.Task, e.Reason)
}

// DuplicateTaskError reports a second task registered under an existing name.
type DuplicateTaskError struct {
	Task string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already exists", e.Task)
}

// UnknownDependencyError reports a DependsOn entry naming a task that is not
// part of the workflow.
type UnknownDependencyError struct {
	Task       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.Task, e.Dependency)
}

// CycleDetectedError reports a dependency cycle. Cycle lists the tasks on the
// cycle with the first task repeated at the end.
type CycleDetectedError struct {
	Cycle []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// ParameterResolutionError reports a parameter reference that cannot be
// resolved for the task that declares it.
type ParameterResolutionError struct {
	Task      string
	Param     string
	Reference string
	Reason    string
}

func (e *ParameterResolutionError) Error() string {
	return fmt.Sprintf("task %q: parameter %q references %q: %s", e.Task, e.Param, e.Reference, e.Reason)
}

// TaskExecutionError is recorded for a task whose action failed on its last
// permitted attempt.
type TaskExecutionError struct {
	Task     string
	Attempts int
	Err      error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %q failed after %d attempt(s): %v", e.Task, e.Attempts, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// WorkflowAbortedError is the run error of a workflow that exceeded its
// timeout or whose context was cancelled.
type WorkflowAbortedError struct {
	Workflow string
	Timeout  time.Duration
	Err      error
}

func (e *WorkflowAbortedError) Error() string {
	if e.Timeout > 0 && errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("workflow %q aborted after timeout %s", e.Workflow, e.Timeout)
	}
	return fmt.Sprintf("workflow %q aborted: %v", e.Workflow, e.Err)
}

func (e *WorkflowAbortedError) Unwrap() error { return e.Err }

// permanentError marks an action error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry controller gives up immediately.
// Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
