package workflow

import (
	"fmt"

	"github.com/nomis52/taskflow/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run and task outcomes into a metrics.Registry.
// Create one per registry and share it between workflows; registering the
// same names twice fails on a scrape registry. A nil *Metrics records nothing.
type Metrics struct {
	workflowRuns     metrics.CounterVec
	workflowDuration metrics.GaugeVec
	taskRuns         metrics.CounterVec
	taskAttempts     metrics.CounterVec
	taskDuration     metrics.GaugeVec
}

// NewMetrics registers the engine metrics with registry.
func NewMetrics(registry metrics.Registry) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.workflowRuns, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_runs_total",
		Help: "Number of finished workflow runs by status",
	}, []string{"workflow", "status"})
	if err != nil {
		return nil, fmt.Errorf("creating workflow_runs_total: %w", err)
	}

	m.workflowDuration, err = registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workflow_duration_seconds",
		Help: "Wall time of the last run of each workflow",
	}, []string{"workflow"})
	if err != nil {
		return nil, fmt.Errorf("creating workflow_duration_seconds: %w", err)
	}

	m.taskRuns, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "task_runs_total",
		Help: "Number of tasks reaching a terminal state",
	}, []string{"workflow", "task", "state"})
	if err != nil {
		return nil, fmt.Errorf("creating task_runs_total: %w", err)
	}

	m.taskAttempts, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "task_attempts_total",
		Help: "Number of action invocations per task",
	}, []string{"workflow", "task"})
	if err != nil {
		return nil, fmt.Errorf("creating task_attempts_total: %w", err)
	}

	m.taskDuration, err = registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "task_duration_seconds",
		Help: "Duration of the last execution of each task",
	}, []string{"workflow", "task"})
	if err != nil {
		return nil, fmt.Errorf("creating task_duration_seconds: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordTask(workflowName string, r *TaskResult) {
	if m == nil {
		return
	}
	m.taskRuns.With(prometheus.Labels{"workflow": workflowName, "task": r.Name, "state": r.State.String()}).Inc()
	if r.Attempts > 0 {
		m.taskAttempts.With(prometheus.Labels{"workflow": workflowName, "task": r.Name}).Add(float64(r.Attempts))
		m.taskDuration.With(prometheus.Labels{"workflow": workflowName, "task": r.Name}).Set(r.Duration().Seconds())
	}
}

func (m *Metrics) recordRun(result *WorkflowResult) {
	if m == nil {
		return
	}
	m.workflowRuns.With(prometheus.Labels{"workflow": result.Name, "status": result.Status.String()}).Inc()
	m.workflowDuration.With(prometheus.Labels{"workflow": result.Name}).Set(result.Duration().Seconds())
}
