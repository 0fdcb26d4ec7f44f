package runner

import (
	"time"

	"github.com/nomis52/taskflow/logging"
	"github.com/nomis52/taskflow/workflow"
)

// RunState represents whether a run is in progress.
type RunState int

const (
	// RunStateIdle indicates no run is in progress.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a run is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// RunStatus contains information about the current or a past run.
type RunStatus struct {
	// ID identifies the run. Empty if no run has occurred.
	ID string `json:"id,omitempty"`
	// Workflows are the workflow names run in order.
	Workflows []string `json:"workflows,omitempty"`
	// State is the current state of the run.
	State RunState `json:"state"`
	// Result is the overall outcome once the run has ended.
	Result string `json:"result,omitempty"`
	// StartedAt is when the run started. Nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the run ended. Nil if run is in progress or no run has occurred.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error contains the error message if the run failed. Empty on success.
	Error string `json:"error,omitempty"`
	// Tasks holds one entry per task seen so far, ordered by workflow then task name.
	Tasks []TaskExecution `json:"tasks,omitempty"`
}

// TaskExecution is the state of one task within a run, together with the
// log records it emitted.
type TaskExecution struct {
	Workflow   string             `json:"workflow"`
	Task       string             `json:"task"`
	State      workflow.TaskState `json:"state"`
	Attempts   int                `json:"attempts,omitempty"`
	Error      string             `json:"error,omitempty"`
	SkipReason string             `json:"skip_reason,omitempty"`
	StartTime  *time.Time         `json:"start_time,omitempty"`
	EndTime    *time.Time         `json:"end_time,omitempty"`
	Logs       []logging.LogEntry `json:"logs,omitempty"`
}

// newTaskExecution converts a task result. Zero times are left nil.
func newTaskExecution(wf string, r workflow.TaskResult, logs []logging.LogEntry) TaskExecution {
	exec := TaskExecution{
		Workflow:   wf,
		Task:       r.Name,
		State:      r.State,
		Attempts:   r.Attempts,
		SkipReason: r.SkipReason,
		Logs:       logs,
	}
	if r.Error != nil {
		exec.Error = r.Error.Error()
	}
	if !r.StartTime.IsZero() {
		start := r.StartTime
		exec.StartTime = &start
	}
	if !r.EndTime.IsZero() {
		end := r.EndTime
		exec.EndTime = &end
	}
	return exec
}
