package handlers

import (
	"net/http"
)

// WorkflowsResponse is the JSON response for /workflows.
type WorkflowsResponse struct {
	Workflows []string `json:"workflows"`
}

// WorkflowsHandler lists the workflows that can be run.
type WorkflowsHandler struct {
	provider WorkflowProvider
}

// NewWorkflowsHandler creates a new WorkflowsHandler.
func NewWorkflowsHandler(provider WorkflowProvider) *WorkflowsHandler {
	return &WorkflowsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *WorkflowsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	workflows := h.provider.Workflows()
	if workflows == nil {
		workflows = []string{}
	}
	writeJSON(w, http.StatusOK, WorkflowsResponse{Workflows: workflows})
}
