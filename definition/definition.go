// Package definition loads workflow definition files.
//
// Two formats are supported, picked by file extension:
//
//	.yaml, .yml  one workflow per YAML document; references are strings of
//	             the exact form "${tasks.<name>.output}"
//	.hcl         one or more workflow blocks; references are the traversal
//	             tasks.<name>.output
//
// Files are first read into a format-agnostic Definition, then a Loader
// binds action names through an actions.Registry and builds a
// *workflow.Workflow.
package definition

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nomis52/taskflow/actions"
	"github.com/nomis52/taskflow/workflow"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor HCL.
var ErrUnsupportedFormat = errors.New("unsupported definition format")

var refPattern = regexp.MustCompile(`^\$\{tasks\.([A-Za-z0-9_-]+)\.output\}$`)

// Definition is a parsed workflow before its actions are bound.
type Definition struct {
	Name        string
	Description string
	Params      map[string]any
	Tasks       []TaskDefinition

	// Source is the file the definition was read from, if any.
	Source string
}

// TaskDefinition is one task of a Definition.
type TaskDefinition struct {
	Name      string
	Action    string
	Params    map[string]workflow.Param
	DependsOn []string

	// Retry is nil when the file does not set one; the loader's default
	// policy applies.
	Retry   *workflow.RetryPolicy
	Timeout time.Duration
}

// ReadFile parses every workflow defined in path.
func ReadFile(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defs []*Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err = ParseYAML(data)
	case ".hcl":
		defs, err = ParseHCL(data, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, def := range defs {
		def.Source = path
	}
	return defs, nil
}

// parseRef reports whether s is a reference string and returns the task it names.
func parseRef(s string) (string, bool) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// retrySettings is the file representation of a retry policy, shared by both formats.
type retrySettings struct {
	Count    int
	Delay    string
	Backoff  string
	MaxDelay string
}

func (r retrySettings) policy() (*workflow.RetryPolicy, error) {
	backoff, err := workflow.ParseBackoff(r.Backoff)
	if err != nil {
		return nil, err
	}
	delay, err := parseDuration(r.Delay)
	if err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	maxDelay, err := parseDuration(r.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("max_delay: %w", err)
	}
	return &workflow.RetryPolicy{Count: r.Count, Delay: delay, Backoff: backoff, MaxDelay: maxDelay}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Loader turns definitions into runnable workflows.
type Loader struct {
	logger       *slog.Logger
	registry     *actions.Registry
	defaultRetry workflow.RetryPolicy
	options      []workflow.Option
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used by the loader.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger.With("component", "definition")
	}
}

// WithRegistry sets the registry actions are looked up in. The default is
// actions.Default().
func WithRegistry(r *actions.Registry) LoaderOption {
	return func(l *Loader) {
		l.registry = r
	}
}

// WithDefaultRetry sets the policy for tasks that do not declare one.
func WithDefaultRetry(p workflow.RetryPolicy) LoaderOption {
	return func(l *Loader) {
		l.defaultRetry = p
	}
}

// WithWorkflowOptions sets options passed to every built workflow.
func WithWorkflowOptions(opts ...workflow.Option) LoaderOption {
	return func(l *Loader) {
		l.options = append(l.options, opts...)
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		logger: slog.Default().With("component", "definition"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.registry == nil {
		l.registry = actions.Default()
	}
	return l
}

// Load reads every file in paths and builds its workflows. Workflow names
// must be unique across all files.
func (l *Loader) Load(paths ...string) ([]*workflow.Workflow, error) {
	var workflows []*workflow.Workflow
	seen := make(map[string]string)

	for _, path := range paths {
		defs, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if prev, dup := seen[def.Name]; dup {
				return nil, fmt.Errorf("workflow %q defined in both %s and %s", def.Name, prev, path)
			}
			seen[def.Name] = path

			wf, err := l.Build(def)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			workflows = append(workflows, wf)
		}
	}
	return workflows, nil
}

// Build binds the definition's actions and returns a validated workflow.
// Each task gets its own action instance.
func (l *Loader) Build(def *Definition) (*workflow.Workflow, error) {
	if def.Name == "" {
		return nil, errors.New("workflow name is required")
	}

	opts := append([]workflow.Option(nil), l.options...)
	if len(def.Params) > 0 {
		opts = append(opts, workflow.WithSharedParams(def.Params))
	}
	wf := workflow.New(def.Name, opts...)

	for _, td := range def.Tasks {
		action, err := l.registry.New(td.Action)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: task %q: %w", def.Name, td.Name, err)
		}

		retry := l.defaultRetry
		if td.Retry != nil {
			retry = *td.Retry
		}

		err = wf.AddTask(workflow.Task{
			Name:      td.Name,
			Action:    action,
			Params:    td.Params,
			DependsOn: td.DependsOn,
			Retry:     retry,
			Timeout:   td.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", def.Name, err)
		}
	}

	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", def.Name, err)
	}

	l.logger.Debug("workflow loaded", "workflow", def.Name, "tasks", len(def.Tasks), "source", def.Source)
	return wf, nil
}
