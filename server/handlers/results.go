package handlers

import (
	"net/http"

	"github.com/nomis52/taskflow/workflow"
)

// ResultsHandler returns the workflow results of the last finished run.
type ResultsHandler struct {
	provider ResultsProvider
}

// NewResultsHandler creates a new ResultsHandler.
func NewResultsHandler(provider ResultsProvider) *ResultsHandler {
	return &ResultsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	results := h.provider.Results()
	if results == nil {
		results = []*workflow.WorkflowResult{}
	}
	writeJSON(w, http.StatusOK, results)
}
