package workflow

import "errors"

// Graph is the validated, compiled form of a workflow's tasks.
// It is immutable once built and safe for concurrent use.
type Graph struct {
	order        []string            // task names in insertion order
	tasks        map[string]Task     // task name -> definition
	dependencies map[string][]string // task name -> deduplicated dependencies
	dependents   map[string][]string // task name -> tasks that depend on it (reverse edges)
	roots        []string            // tasks with no dependencies
}

// BuildGraph validates tasks and compiles them into a Graph.
//
// It fails before anything runs if a task is malformed or duplicated, if a
// dependency names a task that is not in the set (UnknownDependencyError), or
// if the dependencies form a cycle (CycleDetectedError). BuildGraph has no side
// effects and visits tasks in the order given.
func BuildGraph(tasks []Task) (*Graph, error) {
	g := &Graph{
		order:        make([]string, 0, len(tasks)),
		tasks:        make(map[string]Task, len(tasks)),
		dependencies: make(map[string][]string, len(tasks)),
		dependents:   make(map[string][]string, len(tasks)),
	}

	for _, task := range tasks {
		if err := task.validate(); err != nil {
			return nil, err
		}
		if _, exists := g.tasks[task.Name]; exists {
			return nil, &DuplicateTaskError{Task: task.Name}
		}
		g.order = append(g.order, task.Name)
		g.tasks[task.Name] = task
	}

	for _, name := range g.order {
		seen := make(map[string]bool, len(g.tasks[name].DependsOn))
		deps := []string{}
		for _, dep := range g.tasks[name].DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				return nil, &UnknownDependencyError{Task: name, Dependency: dep}
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			deps = append(deps, dep)
			g.dependents[dep] = append(g.dependents[dep], name)
		}
		g.dependencies[name] = deps
		if len(deps) == 0 {
			g.roots = append(g.roots, name)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleDetectedError{Cycle: cycle}
	}

	return g, nil
}

// DFS colours for cycle detection.
const (
	white = iota // not visited
	grey         // on the current DFS path
	black        // fully explored
)

// findCycle runs a depth-first search over dependency edges and returns the
// first cycle found, or nil.
func (g *Graph) findCycle() []string {
	color := make(map[string]int, len(g.order))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = grey
		path = append(path, name)

		for _, dep := range g.dependencies[name] {
			switch color[dep] {
			case grey:
				// dep is on the current path: the cycle runs from dep back to dep.
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append([]string(nil), path[start:]...)
				return append(cycle, dep)
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, name := range g.order {
		if color[name] == white {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}

// Tasks returns the task names in insertion order.
func (g *Graph) Tasks() []string {
	return append([]string(nil), g.order...)
}

// Task returns the named task definition.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Dependencies returns the deduplicated direct dependencies of a task.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.dependencies[name]...)
}

// Dependents returns the tasks that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Roots returns the initial ready set: tasks with no dependencies, in insertion order.
func (g *Graph) Roots() []string {
	return append([]string(nil), g.roots...)
}

// TopologicalOrder returns the tasks ordered so that every task appears after
// all of its dependencies. Ties are broken by insertion order.
func (g *Graph) TopologicalOrder() []string {
	// Kahn's algorithm: in-degree is the number of dependencies.
	inDegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		inDegree[name] = len(g.dependencies[name])
	}

	queue := g.Roots()
	order := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dependent := range g.dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return order
}

// validateParams checks every parameter reference against the referencing
// task's declared dependencies.
func (g *Graph) validateParams() error {
	for _, name := range g.order {
		if err := ValidateParams(g.tasks[name]); err != nil {
			var perr *ParameterResolutionError
			if errors.As(err, &perr) {
				if _, exists := g.tasks[perr.Reference]; !exists && perr.Reference != "" {
					perr.Reason = "unknown task"
				}
			}
			return err
		}
	}
	return nil
}
