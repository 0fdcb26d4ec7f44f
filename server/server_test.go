package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const etlDefinition = `
name: etl
params:
  source: demo
tasks:
  - name: extract
    action: value
    params:
      value: [a, b, c]
  - name: transform
    action: upper
    depends_on: [extract]
    params:
      input: "${tasks.extract.output}"
  - name: load
    action: count
    depends_on: [transform]
    params:
      input: "${tasks.transform.output}"
      format: "Loaded %d items"
`

const reportDefinition = `
workflow "report" {
  task "send" {
    action = "log"
    params {
      message = "report sent"
    }
  }
}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// newTestServer writes a config listing the given definition files, which
// are created in the same directory, and returns a server for it.
func newTestServer(t *testing.T, files map[string]string, extraConfig string, opts ...Option) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	var cfg strings.Builder
	cfg.WriteString("workflows:\n")
	for name, content := range files {
		writeFile(t, dir, name, content)
		fmt.Fprintf(&cfg, "  - %s\n", name)
	}
	cfg.WriteString(extraConfig)
	configPath := writeFile(t, dir, "taskflow.yaml", cfg.String())

	s, err := New(configPath, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.runner.Stop)
	return s, configPath
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_RunWorkflow(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"etl.yaml": etlDefinition, "report.hcl": reportDefinition}, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var workflows struct{ Workflows []string }
	getJSON(t, ts.URL+"/workflows", &workflows)
	assert.Equal(t, []string{"etl", "report"}, workflows.Workflows)

	resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader(`{"workflows": ["etl", "report"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	s.runner.Wait()

	var status struct {
		Run struct {
			ID     string `json:"id"`
			State  string `json:"state"`
			Result string `json:"result"`
			Tasks  []struct {
				Workflow string `json:"workflow"`
				Task     string `json:"task"`
				State    string `json:"state"`
				Logs     []struct {
					Message string `json:"message"`
				} `json:"logs"`
			} `json:"tasks"`
		} `json:"run"`
		NextRun struct {
			Scheduled bool `json:"scheduled"`
		} `json:"next_run"`
	}
	getJSON(t, ts.URL+"/status", &status)
	assert.Equal(t, "idle", status.Run.State)
	assert.Equal(t, "completed", status.Run.Result)
	assert.False(t, status.NextRun.Scheduled)
	require.Len(t, status.Run.Tasks, 4)

	send := status.Run.Tasks[3]
	assert.Equal(t, "report", send.Workflow)
	var messages []string
	for _, l := range send.Logs {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "report sent")

	var results []struct {
		Name  string `json:"name"`
		Tasks map[string]struct {
			Output any `json:"output"`
		} `json:"tasks"`
	}
	getJSON(t, ts.URL+"/results", &results)
	require.Len(t, results, 2)
	assert.Equal(t, "Loaded 3 items", results[0].Tasks["load"].Output)

	var history []map[string]any
	getJSON(t, ts.URL+"/history", &history)
	require.Len(t, history, 1)
	assert.Equal(t, status.Run.ID, history[0]["id"])

	var run map[string]any
	getJSON(t, ts.URL+"/history/"+status.Run.ID, &run)
	assert.Len(t, run["tasks"], 4)

	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `taskflow_workflow_runs_total{status="completed",workflow="etl"} 1`)
}

func TestServer_RunUnknownWorkflow(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"etl.yaml": etlDefinition}, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader(`{"workflows": ["deploy"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Reload(t *testing.T) {
	s, configPath := newTestServer(t, map[string]string{"etl.yaml": etlDefinition}, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	dir := filepath.Dir(configPath)

	writeFile(t, dir, "report.hcl", reportDefinition)
	writeFile(t, dir, "taskflow.yaml", "workflows:\n  - etl.yaml\n  - report.hcl\n")

	resp, err := http.Post(ts.URL+"/reload", "", nil)
	require.NoError(t, err)
	var reloaded struct{ Workflows []string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reloaded))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"etl", "report"}, reloaded.Workflows)
	assert.Equal(t, []string{"etl", "report"}, s.Workflows())

	// A broken definition leaves the previous catalog in place.
	writeFile(t, dir, "report.hcl", `workflow "report" {`)
	resp, err = http.Post(ts.URL+"/reload", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, []string{"etl", "report"}, s.Workflows())
}

func TestServer_Cron(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"etl.yaml": etlDefinition}, "server:\n  cron: \"etl:0 2 * * *\"\n")

	next := s.NextRun()
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Hour())

	s2, _ := newTestServer(t, map[string]string{"etl.yaml": etlDefinition}, "server:\n  cron: \"etl:0 2 * * *\"\n", WithCron("etl:30 4 * * *"))
	assert.Equal(t, 30, s2.NextRun().Minute(), "the option overrides the config file")
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		extra   string
		wantErr string
	}{
		{
			name:    "unknown action",
			files:   map[string]string{"wf.yaml": "name: wf\ntasks:\n  - {name: a, action: teleport}\n"},
			wantErr: "unknown action",
		},
		{
			name:    "duplicate workflow",
			files:   map[string]string{"a.yaml": etlDefinition, "b.yaml": etlDefinition},
			wantErr: "defined in both",
		},
		{
			name:    "cron names unknown workflow",
			files:   map[string]string{"etl.yaml": etlDefinition},
			extra:   "server:\n  cron: \"deploy:0 2 * * *\"\n",
			wantErr: "invalid cron spec",
		},
		{
			name:    "missing certificate",
			files:   map[string]string{"etl.yaml": etlDefinition},
			extra:   "server:\n  tls_cert_file: /nonexistent/server.crt\n  tls_key_file: /nonexistent/server.key\n",
			wantErr: "failed to load key pair",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var cfg strings.Builder
			cfg.WriteString("workflows:\n")
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
				fmt.Fprintf(&cfg, "  - %s\n", name)
			}
			cfg.WriteString(tt.extra)

			_, err := New(writeFile(t, dir, "taskflow.yaml", cfg.String()), WithLogger(quietLogger()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServer_RunAndShutdown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s, _ := newTestServer(t, map[string]string{"etl.yaml": etlDefinition}, "", WithListener(listener))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	url := "http://" + listener.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
