package cron

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Runnable starts runs of named workflows.
type Runnable interface {
	Run(workflows []string) error
}

// CronTriggerManager owns one CronTrigger per entry of a trigger specification.
type CronTriggerManager struct {
	triggers []*CronTrigger
	specs    []TriggerSpec
	logger   *slog.Logger
}

// NewCronTriggerManager parses spec (see ParseTriggerSpecs) and creates a
// trigger for each entry that calls runnable with the entry's workflows.
func NewCronTriggerManager(spec string, runnable Runnable, logger *slog.Logger, available []string) (*CronTriggerManager, error) {
	specs, err := ParseTriggerSpecs(spec, available)
	if err != nil {
		return nil, err
	}

	logger = logger.With("component", "cron")
	triggers := make([]*CronTrigger, 0, len(specs))
	for _, ts := range specs {
		workflows := ts.Workflows
		trigger, err := NewCronTrigger(ts.CronSpec, func() error {
			return runnable.Run(workflows)
		}, logger.With("workflows", strings.Join(workflows, ",")))
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger)
	}

	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"workflows", specs[i].Workflows,
			"schedule", specs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		specs:    specs,
		logger:   logger,
	}, nil
}

// Specs returns the parsed trigger specifications.
func (m *CronTriggerManager) Specs() []TriggerSpec {
	return append([]TriggerSpec(nil), m.specs...)
}

// Start launches all triggers. Returns immediately; the triggers stop when
// ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run time across all triggers, or
// the zero time if there are none.
func (m *CronTriggerManager) NextRun() time.Time {
	var earliest time.Time
	for _, trigger := range m.triggers {
		next := trigger.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
