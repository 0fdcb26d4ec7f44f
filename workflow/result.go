package workflow

import (
	"encoding/json"
	"slices"
	"time"
)

// TaskResult records the outcome of one task within a run.
//
// LIFECYCLE:
// - Created in Pending state when the run starts
// - Progresses Pending -> Ready -> Running (-> Retrying -> Running)* -> (Succeeded|Failed)
// - Or Pending|Ready -> Skipped when a dependency did not succeed, the run failed fast or was aborted
// - Values handed to callers are copies; they never change after being returned
type TaskResult struct {
	Name  string
	State TaskState

	// Output is the action's return value; set only when State is Succeeded.
	Output any

	// Error is a *TaskExecutionError when State is Failed, and nil otherwise.
	Error error

	// Attempts counts action invocations, including the successful one.
	Attempts int

	StartTime time.Time
	EndTime   time.Time

	// SkipReason explains why a Skipped task never ran.
	SkipReason string
}

// IsSuccess returns true if the task's action succeeded on some attempt.
func (r *TaskResult) IsSuccess() bool {
	return r.State == Succeeded
}

// Duration returns the time between the first attempt and the terminal
// transition, or zero if the task never started.
func (r *TaskResult) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// MarshalJSON renders Error as a string.
func (r TaskResult) MarshalJSON() ([]byte, error) {
	type taskResultJSON struct {
		Name       string        `json:"name"`
		State      TaskState     `json:"state"`
		Output     any           `json:"output,omitempty"`
		Error      string        `json:"error,omitempty"`
		Attempts   int           `json:"attempts"`
		StartTime  *time.Time    `json:"start_time,omitempty"`
		EndTime    *time.Time    `json:"end_time,omitempty"`
		Duration   time.Duration `json:"duration_ns,omitempty"`
		SkipReason string        `json:"skip_reason,omitempty"`
	}

	out := taskResultJSON{
		Name:       r.Name,
		State:      r.State,
		Output:     r.Output,
		Attempts:   r.Attempts,
		Duration:   r.Duration(),
		SkipReason: r.SkipReason,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	if !r.StartTime.IsZero() {
		out.StartTime = &r.StartTime
	}
	if !r.EndTime.IsZero() {
		out.EndTime = &r.EndTime
	}
	return json.Marshal(out)
}

func (r *TaskResult) clone() *TaskResult {
	c := *r
	return &c
}

// WorkflowResult is the outcome of a single Run.
type WorkflowResult struct {
	Name      string
	Status    Status
	Tasks     map[string]*TaskResult
	StartTime time.Time
	EndTime   time.Time

	// Err joins the TaskExecutionErrors of failed tasks, or holds a
	// *WorkflowAbortedError when Status is StatusAborted.
	Err error
}

// Output returns the recorded output of a succeeded task.
func (r *WorkflowResult) Output(name string) (any, bool) {
	t, ok := r.Tasks[name]
	if !ok || t.State != Succeeded {
		return nil, false
	}
	return t.Output, true
}

// Failed returns the names of failed tasks, sorted.
func (r *WorkflowResult) Failed() []string {
	return r.namesIn(Failed)
}

// Skipped returns the names of skipped tasks, sorted.
func (r *WorkflowResult) Skipped() []string {
	return r.namesIn(Skipped)
}

// Counts returns the number of tasks in each state.
func (r *WorkflowResult) Counts() map[TaskState]int {
	counts := make(map[TaskState]int)
	for _, t := range r.Tasks {
		counts[t.State]++
	}
	return counts
}

// Duration returns the wall time of the run.
func (r *WorkflowResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// MarshalJSON renders Err as a string.
func (r WorkflowResult) MarshalJSON() ([]byte, error) {
	type workflowResultJSON struct {
		Name      string                 `json:"name"`
		Status    Status                 `json:"status"`
		Tasks     map[string]*TaskResult `json:"tasks"`
		StartTime time.Time              `json:"start_time"`
		EndTime   time.Time              `json:"end_time"`
		Error     string                 `json:"error,omitempty"`
	}
	out := workflowResultJSON{
		Name:      r.Name,
		Status:    r.Status,
		Tasks:     r.Tasks,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

func (r *WorkflowResult) namesIn(state TaskState) []string {
	var names []string
	for name, t := range r.Tasks {
		if t.State == state {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
