package handlers

import (
	"net/http"

	"github.com/nomis52/taskflow/server/runner"
)

// HistoryHandler lists finished runs, most recent first. Task details are
// left out; fetch a single run for those.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history := h.provider.History()
	summaries := make([]runner.RunStatus, len(history))
	for i, run := range history {
		run.Tasks = nil
		summaries[i] = run
	}
	writeJSON(w, http.StatusOK, summaries)
}

// RunHistoryHandler returns a single finished run, with task states and logs.
// The run ID is taken from the {id} path value.
type RunHistoryHandler struct {
	provider HistoryProvider
}

// NewRunHistoryHandler creates a new RunHistoryHandler.
func NewRunHistoryHandler(provider HistoryProvider) *RunHistoryHandler {
	return &RunHistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	run, ok := h.provider.GetRun(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run %q not found", id)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
