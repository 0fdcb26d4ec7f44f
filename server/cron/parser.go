package cron

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	triggerSeparator      = ";"
	workflowSeparator     = ":"
	workflowListSeparator = ","
)

// scheduleParser accepts standard 5 field cron expressions and descriptors
// such as @hourly.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// TriggerSpec is one parsed trigger: the workflows to run, in order, and
// when to run them.
type TriggerSpec struct {
	Workflows []string
	CronSpec  string
}

// ParseTriggerSpecs parses a trigger specification of the form
//
//	etl,report:0 2 * * *;cleanup:*/15 * * * *
//
// Every workflow must be in available. A workflow may appear in several
// triggers but only once per trigger. Errors wrap ErrInvalidCronSpec.
func ParseTriggerSpecs(spec string, available []string) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: spec cannot be empty", ErrInvalidCronSpec)
	}

	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[name] = true
	}

	var specs []TriggerSpec
	for _, part := range strings.Split(spec, triggerSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		ts, err := parseTrigger(part, known)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCronSpec, err)
		}
		specs = append(specs, ts)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no triggers in %q", ErrInvalidCronSpec, spec)
	}
	return specs, nil
}

func parseTrigger(s string, known map[string]bool) (TriggerSpec, error) {
	names, schedule, ok := strings.Cut(s, workflowSeparator)
	names = strings.TrimSpace(names)
	schedule = strings.TrimSpace(schedule)
	switch {
	case !ok:
		return TriggerSpec{}, fmt.Errorf("expected workflows:schedule, got %q", s)
	case names == "":
		return TriggerSpec{}, fmt.Errorf("missing workflows in %q", s)
	case schedule == "":
		return TriggerSpec{}, fmt.Errorf("missing schedule in %q", s)
	}

	var workflows []string
	seen := make(map[string]bool)
	for _, name := range strings.Split(names, workflowListSeparator) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if seen[name] {
			return TriggerSpec{}, fmt.Errorf("duplicate workflow %q in %q", name, s)
		}
		seen[name] = true

		if !known[name] {
			return TriggerSpec{}, fmt.Errorf("unknown workflow %q in %q (available: %s)", name, s, formatAvailable(known))
		}
		workflows = append(workflows, name)
	}
	if len(workflows) == 0 {
		return TriggerSpec{}, fmt.Errorf("no workflows in %q", s)
	}

	if _, err := scheduleParser.Parse(schedule); err != nil {
		return TriggerSpec{}, fmt.Errorf("schedule %q: %w", schedule, err)
	}

	return TriggerSpec{Workflows: workflows, CronSpec: schedule}, nil
}

func formatAvailable(known map[string]bool) string {
	if len(known) == 0 {
		return "none"
	}
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
