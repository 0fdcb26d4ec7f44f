package workflow

import "slices"

// OutputLookup returns the recorded result of a task, if any.
type OutputLookup func(task string) (*TaskResult, bool)

// ValidateParams checks that every reference in the task's parameters names a
// task listed in its DependsOn.
func ValidateParams(task Task) error {
	for _, key := range sortedKeys(task.Params) {
		p := task.Params[key]
		if !p.IsRef() {
			continue
		}
		if p.RefTask() == "" {
			return &ParameterResolutionError{
				Task:   task.Name,
				Param:  key,
				Reason: "empty task reference",
			}
		}
		if !slices.Contains(task.DependsOn, p.RefTask()) {
			return &ParameterResolutionError{
				Task:      task.Name,
				Param:     key,
				Reference: p.RefTask(),
				Reason:    "not a declared dependency",
			}
		}
	}
	return nil
}

// ResolveParams produces the argument map passed to the task's action.
// Literals pass through unchanged; each reference is replaced with the output
// of the referenced dependency, which must have succeeded.
func ResolveParams(task Task, lookup OutputLookup) (map[string]any, error) {
	if err := ValidateParams(task); err != nil {
		return nil, err
	}

	resolved := make(map[string]any, len(task.Params))
	for _, key := range sortedKeys(task.Params) {
		p := task.Params[key]
		if !p.IsRef() {
			resolved[key] = p.Value()
			continue
		}

		result, ok := lookup(p.RefTask())
		if !ok {
			return nil, &ParameterResolutionError{Task: task.Name, Param: key, Reference: p.RefTask(), Reason: "no recorded result"}
		}
		if result.State != Succeeded {
			return nil, &ParameterResolutionError{Task: task.Name, Param: key, Reference: p.RefTask(), Reason: "dependency " + result.State.String()}
		}
		resolved[key] = result.Output
	}
	return resolved, nil
}

// mergeParams layers the task's resolved parameters over the shared ones.
func mergeParams(shared, own map[string]any) map[string]any {
	if len(shared) == 0 {
		return own
	}
	merged := make(map[string]any, len(shared)+len(own))
	for k, v := range shared {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
