// Package cron provides cron-based scheduling for triggering workflow runs.
//
// A CronTrigger calls a function according to a cron schedule. A
// CronTriggerManager parses a multi-trigger specification and owns one
// CronTrigger per entry.
//
// Example usage:
//
//	m, err := cron.NewCronTriggerManager("etl:0 2 * * *", runner, logger, runner.Workflows())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m.Start(ctx) // Returns immediately, runs in background
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when a cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// CronTrigger calls a function according to a cron schedule.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	fn       func() error
	logger   *slog.Logger
}

// NewCronTrigger creates a CronTrigger for a 5 field cron expression.
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewCronTrigger(spec string, fn func() error, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	return newTrigger(spec, schedule, fn, logger), nil
}

func newTrigger(spec string, schedule cron.Schedule, fn func() error, logger *slog.Logger) *CronTrigger {
	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		fn:       fn,
		logger:   logger.With("schedule", spec),
	}
}

// Start launches a goroutine that calls the function on schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(time.Now())
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		nextRun := ct.schedule.Next(time.Now())
		wait := time.NewTimer(time.Until(nextRun))

		ct.logger.Debug("waiting for next scheduled run", "next_run", nextRun)

		select {
		case <-ctx.Done():
			wait.Stop()
			ct.logger.Info("cron trigger shutting down")
			return
		case <-wait.C:
			ct.fire()
		}
	}
}

func (ct *CronTrigger) fire() {
	ct.logger.Info("starting scheduled run")
	if err := ct.fn(); err != nil {
		ct.logger.Warn("scheduled run not started", "error", err)
	}
}
