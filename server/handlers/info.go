package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/taskflow/buildinfo"
)

// ServerInfo holds metadata about the running server instance.
type ServerInfo struct {
	Build     buildinfo.Properties `json:"build"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
}

// InfoHandler reports build and process metadata.
type InfoHandler struct {
	info ServerInfo
}

// NewInfoHandler creates a new InfoHandler.
func NewInfoHandler(info ServerInfo) *InfoHandler {
	return &InfoHandler{info: info}
}

// ServeHTTP implements http.Handler.
func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

// HandleHealth reports that the server is accepting requests. It does not
// depend on whether a run is in progress.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
