// Package runner manages background workflow runs for the taskflow server.
//
// The runner handles:
//   - Starting runs of named workflows in the background
//   - Preventing concurrent runs
//   - Tracking live task state and captured logs of the current run
//   - Maintaining history of completed runs
//
// Each run builds fresh workflow instances from its Source, so definition
// changes take effect on the next run.
//
// # Example
//
//	r := runner.New(logger, source)
//
//	if err := r.Run([]string{"etl", "report"}); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	status := r.Status()
//	for _, task := range status.Tasks {
//	    fmt.Printf("%s/%s [%s]\n", task.Workflow, task.Task, task.State)
//	}
//
//	history := r.History() // Most recent first
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nomis52/taskflow/logging"
	"github.com/nomis52/taskflow/workflow"
)

var (
	// ErrRunInProgress is returned when attempting to start a run while one is already running.
	ErrRunInProgress = errors.New("workflow run already in progress")

	// ErrUnknownWorkflow is returned when a requested workflow is not available.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrRunnerStopped is returned when starting a run after Stop.
	ErrRunnerStopped = errors.New("runner stopped")
)

// Source provides the workflows a Runner can start. Build must return a new
// instance on every call.
type Source interface {
	Workflows() []string
	Build(name string, opts ...workflow.Option) (workflow.Runner, error)
}

// Runner manages workflow run execution.
type Runner struct {
	logger *slog.Logger
	source Source
	store  StateStore
	newID  func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	stopped    bool
	runStatus  RunStatus
	live       map[string]map[string]workflow.TaskResult // workflow -> task -> latest result
	collectors map[string]*logging.LogCollector
	results    []*workflow.WorkflowResult // last finished run
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the store finished runs are saved to.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithIDGenerator overrides how run IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		r.newID = fn
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, source Source, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		logger:    logger.With("component", "runner"),
		source:    source,
		store:     NewMemoryStore(defaultMaxHistorySize),
		newID:     uuid.NewString,
		ctx:       ctx,
		cancel:    cancel,
		runStatus: RunStatus{State: RunStateIdle},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Workflows returns the names of the workflows that can be run.
func (r *Runner) Workflows() []string {
	return r.source.Workflows()
}

// Run starts the named workflows, in order, in the background. A failed
// workflow does not stop the ones after it.
// Returns ErrRunInProgress if a run is already in progress and
// ErrRunnerStopped once Stop has been called.
func (r *Runner) Run(workflows []string) error {
	if err := r.checkNames(workflows); err != nil {
		return err
	}

	id := r.newID()
	logger := r.logger.With("run_id", id)
	collectors := make(map[string]*logging.LogCollector, len(workflows))
	runners := make([]workflow.Runner, 0, len(workflows))

	for _, name := range workflows {
		collector := logging.NewLogCollector()
		collectors[name] = collector

		wf, err := r.source.Build(name,
			workflow.WithLogger(logger),
			workflow.WithLoggerHook(logging.NewCapturingLoggerHook(collector)),
			workflow.WithProgress(r.progressFunc(id, name)),
		)
		if err != nil {
			return fmt.Errorf("building workflow %q: %w", name, err)
		}
		runners = append(runners, wf)
	}

	if err := r.tryStart(id, workflows, collectors); err != nil {
		return err
	}

	logger.Info("starting workflow run", "workflows", workflows)

	composite := workflow.Compose(runners...)
	go func() {
		defer r.wg.Done()
		result, err := composite.Run(r.ctx)
		r.finish(composite.Results(), result, err)
	}()

	return nil
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels the current run and waits for it to finish. The Runner
// cannot start new runs afterwards.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// Status returns the current run status. While a run is in progress it
// includes the live state and logs of every task seen so far; when idle it
// is the last finished run.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.runStatus
	if status.State == RunStateRunning {
		status.Tasks = r.liveExecutions()
	}
	return status
}

// IsRunning returns true if a run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.State == RunStateRunning
}

// History returns the history of completed runs, most recent first.
func (r *Runner) History() []RunStatus {
	return r.store.Runs()
}

// GetRun returns a completed run by ID.
func (r *Runner) GetRun(id string) (RunStatus, bool) {
	return r.store.Get(id)
}

// Results returns the workflow results of the last finished run, or nil if
// no run has finished yet.
func (r *Runner) Results() []*workflow.WorkflowResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*workflow.WorkflowResult(nil), r.results...)
}

func (r *Runner) checkNames(workflows []string) error {
	if len(workflows) == 0 {
		return errors.New("no workflows requested")
	}

	available := make(map[string]bool)
	for _, name := range r.source.Workflows() {
		available[name] = true
	}

	seen := make(map[string]bool, len(workflows))
	for _, name := range workflows {
		if !available[name] {
			return fmt.Errorf("%w %q", ErrUnknownWorkflow, name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate workflow %q", name)
		}
		seen[name] = true
	}
	return nil
}

// tryStart attempts to transition from idle to running. On success the run
// is counted in wg, so a later Stop waits for it.
func (r *Runner) tryStart(id string, workflows []string, collectors map[string]*logging.LogCollector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrRunnerStopped
	}
	if r.runStatus.State == RunStateRunning {
		return ErrRunInProgress
	}
	r.wg.Add(1)

	now := time.Now()
	r.runStatus = RunStatus{
		ID:        id,
		Workflows: append([]string(nil), workflows...),
		State:     RunStateRunning,
		StartedAt: &now,
	}
	r.live = make(map[string]map[string]workflow.TaskResult, len(workflows))
	r.collectors = collectors
	return nil
}

// progressFunc records task updates of workflow wf while run id is current.
func (r *Runner) progressFunc(id, wf string) func(workflow.TaskResult) {
	return func(res workflow.TaskResult) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.runStatus.ID != id || r.live == nil {
			return
		}
		tasks, ok := r.live[wf]
		if !ok {
			tasks = make(map[string]workflow.TaskResult)
			r.live[wf] = tasks
		}
		tasks[res.Name] = res
	}
}

// finish transitions from running to idle and records the result. err is
// the error returned by the composite run; task failures come from result.
func (r *Runner) finish(results []*workflow.WorkflowResult, result *workflow.WorkflowResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endTime := time.Now()
	duration := endTime.Sub(*r.runStatus.StartedAt)

	r.runStatus.State = RunStateIdle
	r.runStatus.EndedAt = &endTime
	if result != nil {
		r.runStatus.Result = result.Status.String()
		if err == nil {
			err = result.Err
		}
	}

	logger := r.logger.With("run_id", r.runStatus.ID)
	if err != nil {
		r.runStatus.Error = err.Error()
		logger.Error("workflow run failed", "error", err, "duration", duration)
	} else {
		logger.Info("workflow run completed", "duration", duration)
	}

	r.results = results
	r.runStatus.Tasks = r.finalExecutions(results)
	r.live = nil
	r.collectors = nil

	if err := r.store.Save(r.runStatus); err != nil {
		logger.Error("failed to save run to store", "error", err)
	}
}

// liveExecutions builds task executions from progress updates. Callers hold r.mu.
func (r *Runner) liveExecutions() []TaskExecution {
	var executions []TaskExecution
	for _, wf := range r.runStatus.Workflows {
		tasks := r.live[wf]
		names := make([]string, 0, len(tasks))
		for name := range tasks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			executions = append(executions, newTaskExecution(wf, tasks[name], r.logsFor(wf, name)))
		}
	}
	return executions
}

// finalExecutions builds task executions from finished results. Callers hold r.mu.
func (r *Runner) finalExecutions(results []*workflow.WorkflowResult) []TaskExecution {
	var executions []TaskExecution
	for _, res := range results {
		names := make([]string, 0, len(res.Tasks))
		for name := range res.Tasks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			executions = append(executions, newTaskExecution(res.Name, *res.Tasks[name], r.logsFor(res.Name, name)))
		}
	}
	return executions
}

func (r *Runner) logsFor(wf, task string) []logging.LogEntry {
	collector, ok := r.collectors[wf]
	if !ok {
		return nil
	}
	return collector.GetLogs(task)
}
