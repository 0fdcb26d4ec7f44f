package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/taskflow/logging"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/nomis52/taskflow/workflow"

// FailurePolicy decides what happens to the rest of a run after a task fails.
type FailurePolicy int

const (
	// FailFast skips every task that has not been dispatched once any task fails.
	FailFast FailurePolicy = iota
	// ContinueOnError skips only the transitive dependents of failed tasks.
	ContinueOnError
)

// String returns the config spelling of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case ContinueOnError:
		return "continue_on_error"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy parses "fail_fast" or "continue_on_error". The empty
// string means FailFast.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "fail_fast":
		return FailFast, nil
	case "continue_on_error":
		return ContinueOnError, nil
	default:
		return FailFast, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Runner is anything that runs to a WorkflowResult.
type Runner interface {
	Name() string
	Run(ctx context.Context) (*WorkflowResult, error)
}

// Workflow is a named set of tasks plus lifecycle hooks.
//
// Tasks may be added until the first call to Run. Every Run builds its own
// run table, so concurrent runs of the same Workflow are independent.
type Workflow struct {
	name           string
	logger         *slog.Logger
	loggerHook     logging.LoggerHook
	policy         FailurePolicy
	maxConcurrency int
	timeout        time.Duration
	shared         map[string]any
	metrics        *Metrics
	tracer         trace.Tracer
	progress       func(TaskResult)

	mu      sync.RWMutex
	tasks   []Task
	index   map[string]int
	hooks   hooks
	started bool
}

// Option is a function that configures a Workflow
type Option func(*Workflow)

// WithLogger sets a custom logger for the workflow
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger.With("component", "workflow", "workflow", w.name)
	}
}

// WithLoggerHook sets a hook that wraps each task's logger.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(w *Workflow) {
		w.loggerHook = hook
	}
}

// WithFailurePolicy sets the failure policy. The default is FailFast.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(w *Workflow) {
		w.policy = policy
	}
}

// WithMaxConcurrency caps the number of tasks running at once. Zero or
// less means no cap.
func WithMaxConcurrency(n int) Option {
	return func(w *Workflow) {
		w.maxConcurrency = n
	}
}

// WithTimeout aborts a run that takes longer than d.
func WithTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		w.timeout = d
	}
}

// WithSharedParams sets parameters passed to every action. A task's own
// parameters take precedence.
func WithSharedParams(params map[string]any) Option {
	return func(w *Workflow) {
		w.shared = make(map[string]any, len(params))
		for k, v := range params {
			w.shared[k] = v
		}
	}
}

// WithMetrics records run outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithTracer emits a span per run and per task.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Workflow) {
		w.tracer = tracer
	}
}

// WithProgress registers fn to receive a copy of a task's result on every
// state change. fn is called from several goroutines.
func WithProgress(fn func(TaskResult)) Option {
	return func(w *Workflow) {
		w.progress = fn
	}
}

// New creates an empty workflow.
func New(name string, opts ...Option) *Workflow {
	w := &Workflow{
		name:   name,
		tracer: noop.NewTracerProvider().Tracer(tracerName),
		index:  make(map[string]int),
	}
	w.logger = slog.Default().With("component", "workflow", "workflow", name)

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the workflow name.
func (w *Workflow) Name() string {
	return w.name
}

// AddTask registers one or more tasks. It fails on an invalid or duplicate
// task, or once the workflow has been run; tasks before the failing one stay
// registered.
func (w *Workflow) AddTask(tasks ...Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrWorkflowStarted
	}

	for _, task := range tasks {
		if err := task.validate(); err != nil {
			return err
		}
		if _, exists := w.index[task.Name]; exists {
			return &DuplicateTaskError{Task: task.Name}
		}
		w.index[task.Name] = len(w.tasks)
		w.tasks = append(w.tasks, task.clone())
		w.logger.Debug("task added", "task", task.Name, "depends_on", task.DependsOn)
	}
	return nil
}

// Task returns the named task.
func (w *Workflow) Task(name string) (Task, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	i, ok := w.index[name]
	if !ok {
		return Task{}, false
	}
	return w.tasks[i].clone(), true
}

// Tasks returns the registered tasks in insertion order.
func (w *Workflow) Tasks() []Task {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tasks := make([]Task, len(w.tasks))
	for i, t := range w.tasks {
		tasks[i] = t.clone()
	}
	return tasks
}

// OnStart registers a hook called once before the first dispatch of each run.
func (w *Workflow) OnStart(hook StartHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks.onStart = append(w.hooks.onStart, hook)
}

// OnComplete registers a hook called once at the end of each run.
func (w *Workflow) OnComplete(hook CompleteHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks.onComplete = append(w.hooks.onComplete, hook)
}

// OnFailure registers a hook called when a run ends Failed or Aborted.
func (w *Workflow) OnFailure(hook FailureHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks.onFailure = append(w.hooks.onFailure, hook)
}

// OnTaskFailure registers a hook called for every task that ends Failed.
func (w *Workflow) OnTaskFailure(hook TaskFailureHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks.onTaskFailure = append(w.hooks.onTaskFailure, hook)
}

// Validate builds the dependency graph and checks parameter references
// without running anything.
func (w *Workflow) Validate() error {
	_, err := w.compile(w.Tasks())
	return err
}

func (w *Workflow) compile(tasks []Task) (*Graph, error) {
	graph, err := BuildGraph(tasks)
	if err != nil {
		return nil, err
	}
	if err := graph.validateParams(); err != nil {
		return nil, err
	}
	return graph, nil
}

// Run executes the workflow.
//
// Errors in the workflow's structure (unknown dependencies, cycles, bad
// parameter references) are returned before any action runs. Task failures,
// skips and timeouts are reported through the WorkflowResult; the error
// return is nil once execution has started.
func (w *Workflow) Run(ctx context.Context) (*WorkflowResult, error) {
	w.mu.Lock()
	w.started = true
	tasks := make([]Task, len(w.tasks))
	copy(tasks, w.tasks)
	hooks := w.hooks.clone()
	w.mu.Unlock()

	graph, err := w.compile(tasks)
	if err != nil {
		w.logger.Error("workflow validation failed", "error", err)
		return nil, fmt.Errorf("validating workflow %q: %w", w.name, err)
	}

	return newRun(w, graph, hooks).execute(ctx), nil
}
