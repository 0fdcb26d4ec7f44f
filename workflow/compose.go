package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Compose creates a composite runner that executes several runners in sequence.
// Each runner is executed in order, and execution continues even if one fails.
// Task results are merged under "<workflow>/<task>" keys.
func Compose(runners ...Runner) *Composite {
	return &Composite{runners: runners}
}

// Composite runs several workflows one after another.
type Composite struct {
	runners []Runner

	mu      sync.Mutex
	results []*WorkflowResult
}

// Name joins the names of the composed runners.
func (c *Composite) Name() string {
	names := make([]string, len(c.runners))
	for i, r := range c.runners {
		names[i] = r.Name()
	}
	return strings.Join(names, ",")
}

// Run executes every runner in sequence and merges their results.
//
// The merged status is the worst of the individual ones: Aborted, then
// Failed, then Completed. A runner that cannot start (for example because of a
// dependency cycle) counts as Failed; the errors of all such runners are
// combined in the returned error, which is nil when every runner started.
func (c *Composite) Run(ctx context.Context) (*WorkflowResult, error) {
	merged := &WorkflowResult{
		Name:      c.Name(),
		Status:    StatusCompleted,
		Tasks:     make(map[string]*TaskResult),
		StartTime: time.Now(),
	}

	var results []*WorkflowResult
	var buildErrs []string
	var runErrs []string

	for _, r := range c.runners {
		result, err := r.Run(ctx)
		if err != nil {
			buildErrs = append(buildErrs, fmt.Sprintf("workflow %q failed: %v", r.Name(), err))
			merged.Status = worse(merged.Status, StatusFailed)
			continue
		}
		results = append(results, result)

		for name, tr := range result.Tasks {
			merged.Tasks[result.Name+"/"+name] = tr
		}
		merged.Status = worse(merged.Status, result.Status)
		if result.Err != nil {
			runErrs = append(runErrs, fmt.Sprintf("workflow %q %s: %v", result.Name, result.Status, result.Err))
		}
	}
	merged.EndTime = time.Now()

	c.mu.Lock()
	c.results = results
	c.mu.Unlock()

	all := append(append([]string(nil), buildErrs...), runErrs...)
	if len(all) > 0 {
		merged.Err = fmt.Errorf("%d workflow(s) failed:\n  - %s", len(all), strings.Join(all, "\n  - "))
	}

	if len(buildErrs) > 0 {
		return merged, fmt.Errorf("%d workflow(s) failed to start:\n  - %s", len(buildErrs), strings.Join(buildErrs, "\n  - "))
	}
	return merged, nil
}

// Results returns the individual results of the last Run, in order.
func (c *Composite) Results() []*WorkflowResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*WorkflowResult(nil), c.results...)
}

func worse(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}
