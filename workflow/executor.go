package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/taskflow/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// taskEvent reports a task's terminal state to the coordinator.
type taskEvent struct {
	name  string
	state TaskState
}

// run is the state of a single execution of a workflow.
//
// The coordinator goroutine (execute) owns a task's slot in the table until it
// dispatches the task; from then on the task's own goroutine is the only
// writer of that slot. Both write under mu so readers always see a
// consistent snapshot.
type run struct {
	w      *Workflow
	graph  *Graph
	hooks  hooks
	logger *slog.Logger

	mu    sync.RWMutex
	table map[string]*TaskResult

	events chan taskEvent
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	// set in execute
	callerCtx    context.Context
	runCtx       context.Context
	dispatchCtx  context.Context
	haltDispatch context.CancelCauseFunc

	// owned by the coordinator
	remaining map[string]int
	inFlight  int
	halted    bool
	aborted   bool
}

func newRun(w *Workflow, graph *Graph, h hooks) *run {
	r := &run{
		w:         w,
		graph:     graph,
		hooks:     h,
		logger:    w.logger,
		table:     make(map[string]*TaskResult, graph.Len()),
		events:    make(chan taskEvent, graph.Len()),
		remaining: make(map[string]int, graph.Len()),
	}
	if w.maxConcurrency > 0 {
		r.sem = semaphore.NewWeighted(int64(w.maxConcurrency))
	}
	for _, name := range graph.Tasks() {
		r.table[name] = &TaskResult{Name: name, State: Pending}
		r.remaining[name] = len(graph.dependencies[name])
	}
	return r
}

// execute drives the run to completion and returns its result.
func (r *run) execute(ctx context.Context) *WorkflowResult {
	startTime := time.Now()

	ctx, span := r.w.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.name", r.w.name),
		attribute.Int("workflow.task_count", r.graph.Len()),
	))
	defer span.End()

	r.callerCtx = ctx
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.w.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.w.timeout)
	}
	defer cancel()
	r.runCtx = runCtx

	dispatchCtx, haltDispatch := context.WithCancelCause(runCtx)
	defer haltDispatch(nil)
	r.dispatchCtx, r.haltDispatch = dispatchCtx, haltDispatch

	r.logger.Info("starting workflow", "task_count", r.graph.Len(), "failure_policy", r.w.policy.String())
	r.hooks.start(ctx, r.logger)

	for _, name := range r.graph.Roots() {
		r.dispatch(name)
	}

	done := runCtx.Done()
	for r.inFlight > 0 {
		select {
		case ev := <-r.events:
			r.inFlight--
			r.handle(ev)
		case <-done:
			done = nil
			r.aborted = true
			r.logger.Warn("workflow aborted", "error", runCtx.Err())
			r.halt(fmt.Sprintf("workflow aborted: %v", runCtx.Err()))
		}
	}
	r.wg.Wait()

	// Anything still pending was never reachable from a dispatched task.
	r.skipPending("workflow ended before task was ready")

	result := r.result(startTime)

	if result.Status != StatusCompleted {
		span.SetStatus(codes.Error, result.Status.String())
		r.hooks.failure(ctx, r.logger, result.Err)
	}
	span.SetAttributes(attribute.String("workflow.status", result.Status.String()))

	r.w.metrics.recordRun(result)
	r.hooks.complete(ctx, r.logger, result)

	r.logger.Info("workflow finished",
		"status", result.Status.String(),
		"duration", result.Duration(),
		"failed", result.Failed(),
		"skipped", result.Skipped(),
	)
	return result
}

// handle advances the run after a task reached a terminal state.
func (r *run) handle(ev taskEvent) {
	switch ev.state {
	case Succeeded:
		if r.halted || r.dispatchCtx.Err() != nil {
			return
		}
		for _, dependent := range r.graph.dependents[ev.name] {
			r.remaining[dependent]--
			if r.remaining[dependent] == 0 && r.stateOf(dependent) == Pending {
				r.dispatch(dependent)
			}
		}
	case Failed:
		r.skipDependents(ev.name, fmt.Sprintf("dependency %q failed", ev.name))
		if r.w.policy == FailFast && !r.halted {
			r.logger.Warn("failing fast", "task", ev.name)
			r.halt(failFastReason(ev.name))
		}
	case Skipped:
		r.skipDependents(ev.name, fmt.Sprintf("dependency %q was skipped", ev.name))
	}
}

// halt stops all further dispatch. Tasks that were dispatched but have not
// started running skip themselves when they see dispatchCtx cancelled.
func (r *run) halt(reason string) {
	r.halted = true
	r.haltDispatch(errors.New(reason))
	r.skipPending(reason)
}

func failFastReason(task string) string {
	return fmt.Sprintf("workflow failed fast after task %q failed", task)
}

// dispatch hands a task whose dependencies all succeeded to its own goroutine.
func (r *run) dispatch(name string) {
	r.update(name, func(tr *TaskResult) { tr.State = Ready })
	r.inFlight++
	r.wg.Add(1)
	go r.runTask(name)
}

// skipDependents marks every transitive dependent of name as Skipped.
func (r *run) skipDependents(name, reason string) {
	for _, dependent := range r.graph.dependents[name] {
		if r.stateOf(dependent) != Pending {
			continue
		}
		r.skip(dependent, reason)
		r.skipDependents(dependent, fmt.Sprintf("dependency %q was skipped", dependent))
	}
}

// skipPending marks every task that was never dispatched as Skipped.
func (r *run) skipPending(reason string) {
	for _, name := range r.graph.order {
		if r.stateOf(name) == Pending {
			r.skip(name, reason)
		}
	}
}

func (r *run) skip(name, reason string) {
	r.logger.Debug("task skipped", "task", name, "reason", reason)
	tr := r.update(name, func(tr *TaskResult) {
		tr.State = Skipped
		tr.SkipReason = reason
		tr.EndTime = time.Now()
	})
	r.w.metrics.recordTask(r.w.name, &tr)
}

// runTask executes one dispatched task and reports its terminal state.
func (r *run) runTask(name string) {
	defer r.wg.Done()

	task := r.graph.tasks[name]
	state := r.runAttempts(task)
	r.events <- taskEvent{name: name, state: state}
}

func (r *run) runAttempts(task Task) TaskState {
	if r.sem != nil {
		if err := r.sem.Acquire(r.dispatchCtx, 1); err != nil {
			r.skipDispatched(task.Name)
			return Skipped
		}
		defer r.sem.Release(1)
	}
	if r.dispatchCtx.Err() != nil {
		r.skipDispatched(task.Name)
		return Skipped
	}

	logger := r.taskLogger(task.Name)
	ctx, span := r.w.tracer.Start(r.runCtx, "workflow.task", trace.WithAttributes(
		attribute.String("workflow.name", r.w.name),
		attribute.String("task.name", task.Name),
	))
	defer span.End()
	ctx = logging.WithLogger(ctx, logger)

	r.update(task.Name, func(tr *TaskResult) {
		tr.State = Running
		tr.StartTime = time.Now()
	})
	logger.Info("task started")

	params, err := ResolveParams(task, r.lookup)
	attempts := 0
	var output any
	if err == nil {
		rt := &retrier{
			task: task,
			onAttempt: func(attempt int) {
				r.update(task.Name, func(tr *TaskResult) {
					tr.State = Running
					tr.Attempts = attempt
				})
			},
			onRetry: func(attempt int, err error, delay time.Duration) {
				logger.Warn("task attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
				r.update(task.Name, func(tr *TaskResult) { tr.State = Retrying })
			},
		}
		output, attempts, err = rt.run(ctx, mergeParams(r.w.shared, params))
	}
	span.SetAttributes(attribute.Int("task.attempts", attempts))

	if err != nil {
		execErr := &TaskExecutionError{Task: task.Name, Attempts: attempts, Err: err}
		tr := r.update(task.Name, func(tr *TaskResult) {
			tr.State = Failed
			tr.Error = execErr
			tr.Attempts = attempts
			tr.EndTime = time.Now()
		})
		// Dispatch stops before the hooks run and before the slot is released.
		if r.w.policy == FailFast {
			r.haltDispatch(errors.New(failFastReason(task.Name)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("task failed", "attempts", attempts, "error", err)
		r.w.metrics.recordTask(r.w.name, &tr)
		r.hooks.taskFailure(r.callerCtx, r.logger, task.Name, execErr)
		return Failed
	}

	tr := r.update(task.Name, func(tr *TaskResult) {
		tr.State = Succeeded
		tr.Output = output
		tr.Attempts = attempts
		tr.EndTime = time.Now()
	})
	logger.Info("task succeeded", "attempts", attempts, "duration", tr.Duration())
	r.w.metrics.recordTask(r.w.name, &tr)
	return Succeeded
}

// skipDispatched records a dispatched task that was halted before it started.
func (r *run) skipDispatched(name string) {
	reason := "workflow halted"
	if cause := context.Cause(r.dispatchCtx); cause != nil {
		reason = cause.Error()
	}
	r.skip(name, reason)
}

func (r *run) taskLogger(name string) *slog.Logger {
	logger := r.logger.With("task", name)
	if r.w.loggerHook != nil {
		logger = r.w.loggerHook.LoggerForTask(logger, name)
	}
	return logger
}

// lookup reads a dependency's result for parameter resolution.
func (r *run) lookup(name string) (*TaskResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.table[name]
	if !ok {
		return nil, false
	}
	return tr.clone(), true
}

func (r *run) stateOf(name string) TaskState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table[name].State
}

// update applies fn to a task's slot and returns a copy of the new value.
func (r *run) update(name string, fn func(*TaskResult)) TaskResult {
	r.mu.Lock()
	tr := r.table[name]
	fn(tr)
	snapshot := *tr
	r.mu.Unlock()

	if r.w.progress != nil {
		r.w.progress(snapshot)
	}
	return snapshot
}

// snapshot returns a copy of every task's current result.
func (r *run) snapshot() map[string]*TaskResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make(map[string]*TaskResult, len(r.table))
	for name, tr := range r.table {
		tasks[name] = tr.clone()
	}
	return tasks
}

func (r *run) result(startTime time.Time) *WorkflowResult {
	result := &WorkflowResult{
		Name:      r.w.name,
		Tasks:     r.snapshot(),
		StartTime: startTime,
		EndTime:   time.Now(),
		Status:    StatusCompleted,
	}

	var taskErrs []error
	for _, name := range r.graph.TopologicalOrder() {
		if tr := result.Tasks[name]; tr.State == Failed {
			taskErrs = append(taskErrs, tr.Error)
		}
	}

	aborted := r.aborted
	if !aborted && r.runCtx.Err() != nil {
		// The deadline may fire after the last event was handled.
		for _, tr := range result.Tasks {
			if tr.State != Succeeded {
				aborted = true
				break
			}
		}
	}

	switch {
	case aborted:
		result.Status = StatusAborted
		result.Err = &WorkflowAbortedError{Workflow: r.w.name, Timeout: r.w.timeout, Err: r.runCtx.Err()}
	case len(taskErrs) > 0:
		result.Status = StatusFailed
		result.Err = errors.Join(taskErrs...)
	}
	return result
}
