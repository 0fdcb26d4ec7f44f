package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nomis52/taskflow/server/runner"
)

// RunRequest defines the request body for POST /run.
type RunRequest struct {
	Workflows []string `json:"workflows"`
}

// RunHandler handles requests to start a workflow run.
type RunHandler struct {
	runner WorkflowRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r WorkflowRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}

	if len(req.Workflows) == 0 {
		writeError(w, http.StatusBadRequest, "workflows array cannot be empty")
		return
	}

	err := h.runner.Run(req.Workflows)
	if err == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	status := http.StatusBadRequest
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, runner.ErrUnknownWorkflow):
		status = http.StatusNotFound
	case errors.Is(err, runner.ErrRunnerStopped):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, "%v", err)
}
