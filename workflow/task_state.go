package workflow

import "fmt"

// TaskState represents the execution state of a task within a single run.
type TaskState int

const (
	// Pending indicates the task is waiting for its dependencies to succeed.
	Pending TaskState = iota

	// Ready indicates every dependency succeeded and the task has been handed
	// to the dispatcher but has not started running yet.
	Ready

	// Running indicates an attempt of the task's action is in progress.
	Running

	// Retrying indicates an attempt failed and the task is waiting for the
	// retry delay before the next attempt.
	Retrying

	// Succeeded indicates the action returned without error on some attempt.
	Succeeded

	// Failed indicates the action failed on every permitted attempt.
	Failed

	// Skipped indicates the task was never run: a dependency failed or was
	// skipped, the workflow failed fast, or the run was aborted.
	Skipped
)

// String returns a human-readable representation of the TaskState
func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Retrying:
		return "retrying"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Succeeded, Failed and Skipped.
func (s TaskState) IsTerminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

// MarshalText implements encoding.TextMarshaler.
func (s TaskState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TaskState) UnmarshalText(text []byte) error {
	for candidate := Pending; candidate <= Skipped; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", string(text))
}

// Status is the overall outcome of a workflow run.
type Status int

const (
	// StatusCompleted indicates every task succeeded.
	StatusCompleted Status = iota

	// StatusFailed indicates at least one task failed.
	StatusFailed

	// StatusAborted indicates the run hit its timeout or its context was cancelled.
	StatusAborted
)

// String returns a human-readable representation of the Status
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
