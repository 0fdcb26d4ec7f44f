package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nomis52/taskflow/buildinfo"
	"github.com/stretchr/testify/assert"
)

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestInfoHandler(t *testing.T) {
	started := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	handler := NewInfoHandler(ServerInfo{
		Build:     buildinfo.Get(),
		StartedAt: started,
		Hostname:  "worker-1",
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"build": {"version": "dev", "build_time": "unknown", "git_commit": "unknown"},
		"started_at": "2024-05-01T02:00:00Z",
		"hostname": "worker-1"
	}`, w.Body.String())
}
