package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler re-reads the configuration and workflow definitions. A run
// in progress keeps the workflows it started with. On success the response
// lists the workflows that can be run from now on.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("reload failed, keeping previous workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "reload failed: %v", err)
		return
	}

	workflows := h.reloader.Workflows()
	h.logger.Info("reload complete", "workflows", workflows)
	writeJSON(w, http.StatusOK, WorkflowsResponse{Workflows: workflows})
}
