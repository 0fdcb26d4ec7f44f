// Package actions maps action names used in workflow definition files to
// workflow.Action implementations.
package actions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/nomis52/taskflow/workflow"
)

// ErrUnknownAction is returned by New for a name nobody registered.
var ErrUnknownAction = errors.New("unknown action")

// Factory creates a fresh action instance. Definition loaders call it once per
// task, so stateful actions never share state between tasks.
type Factory func() workflow.Action

// Registry maps action names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding the built-in actions.
func Default() *Registry {
	r := NewRegistry()
	for name, f := range builtins() {
		if err := r.Register(name, f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("action name is required")
	}
	if f == nil {
		return fmt.Errorf("action %q: factory is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// RegisterAction adds a stateless action; every task gets the same instance.
func (r *Registry) RegisterAction(name string, a workflow.Action) error {
	if a == nil {
		return fmt.Errorf("action %q: action is nil", name)
	}
	return r.Register(name, func() workflow.Action { return a })
}

// RegisterFunc adds a stateless function as an action.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context, params map[string]any) (any, error)) error {
	if fn == nil {
		return fmt.Errorf("action %q: function is nil", name)
	}
	return r.RegisterAction(name, workflow.ActionFunc(fn))
}

// New returns a new instance of the named action.
func (r *Registry) New(name string) (workflow.Action, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, name)
	}
	return f(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
