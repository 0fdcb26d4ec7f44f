// Package handlers provides HTTP handlers for the taskflow server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/taskflow/config"
	"github.com/nomis52/taskflow/server/runner"
	"github.com/nomis52/taskflow/workflow"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader re-reads the configuration and workflow definitions and lists
// the workflows available afterwards.
type Reloader interface {
	Reload() error
	Workflows() []string
}

// WorkflowRunner can start runs of named workflows.
type WorkflowRunner interface {
	Run(workflows []string) error
}

// WorkflowProvider lists the workflows that can be run.
type WorkflowProvider interface {
	Workflows() []string
}

// RunStatusProvider provides access to run status.
type RunStatusProvider interface {
	Status() runner.RunStatus
}

// NextRunProvider reports the next scheduled run, or nil if nothing is scheduled.
type NextRunProvider interface {
	NextRun() *time.Time
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunStatus
	GetRun(id string) (runner.RunStatus, bool)
}

// ResultsProvider provides access to the results of the last finished run.
type ResultsProvider interface {
	Results() []*workflow.WorkflowResult
}
