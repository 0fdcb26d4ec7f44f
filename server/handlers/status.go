package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/taskflow/server/runner"
)

// NextRunResponse describes the next scheduled run.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// StatusResponse is the response for /status.
type StatusResponse struct {
	Run     runner.RunStatus `json:"run"`
	NextRun NextRunResponse  `json:"next_run"`
}

// StatusProvider aggregates what the status endpoint reports.
type StatusProvider interface {
	RunStatusProvider
	NextRunProvider
}

// StatusHandler reports the current or last run, including live task state
// and logs, plus the next scheduled run.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	next := h.provider.NextRun()
	writeJSON(w, http.StatusOK, StatusResponse{
		Run: h.provider.Status(),
		NextRun: NextRunResponse{
			Scheduled: next != nil,
			NextRun:   next,
		},
	})
}
