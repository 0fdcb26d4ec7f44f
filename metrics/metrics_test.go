package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteServer decodes every request it receives onto the returned channel.
func remoteWriteServer(t *testing.T, status int) (*httptest.Server, <-chan []prompb.TimeSeries) {
	t.Helper()
	received := make(chan []prompb.TimeSeries, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var req prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &req))
		received <- req.Timeseries
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func labelMap(ts prompb.TimeSeries) map[string]string {
	m := make(map[string]string, len(ts.Labels))
	for _, l := range ts.Labels {
		m[l.Name] = l.Value
	}
	return m
}

func TestPushRegistry_BuffersUntilFlush(t *testing.T) {
	server, received := remoteWriteServer(t, http.StatusNoContent)
	registry := NewPushRegistry(PushConfig{
		URL:      server.URL + "/",
		Prefix:   "taskflow",
		Job:      "taskflow",
		Instance: "ci",
	})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "last_run_timestamp"})
	require.NoError(t, err)
	gauge.Set(41)
	gauge.Set(42)

	runs, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "workflow_runs_total"}, []string{"workflow", "status"})
	require.NoError(t, err)
	runs.With(prometheus.Labels{"workflow": "etl", "status": "completed"}).Inc()
	runs.With(prometheus.Labels{"status": "completed", "workflow": "etl"}).Add(2)
	runs.With(prometheus.Labels{"workflow": "etl", "status": "failed"}).Inc()

	select {
	case <-received:
		t.Fatal("nothing should be sent before Flush")
	default:
	}
	assert.Equal(t, 3, registry.Len())

	require.NoError(t, registry.Flush(context.Background()))

	var series []prompb.TimeSeries
	select {
	case series = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for remote write")
	}
	require.Len(t, series, 3)

	values := map[string]float64{}
	for _, ts := range series {
		labels := labelMap(ts)
		assert.Equal(t, "taskflow", labels["job"])
		assert.Equal(t, "ci", labels["instance"])
		require.Len(t, ts.Samples, 1)
		values[labels["__name__"]+"/"+labels["status"]] = ts.Samples[0].Value

		for i := 1; i < len(ts.Labels); i++ {
			assert.Less(t, ts.Labels[i-1].Name, ts.Labels[i].Name, "labels must be sorted")
		}
	}
	assert.Equal(t, map[string]float64{
		"taskflow_last_run_timestamp/":          42,
		"taskflow_workflow_runs_total/completed": 3,
		"taskflow_workflow_runs_total/failed":    1,
	}, values)
}

func TestPushRegistry_CountersAccumulateAcrossFlushes(t *testing.T) {
	server, received := remoteWriteServer(t, http.StatusOK)
	registry := NewPushRegistry(PushConfig{URL: server.URL})

	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "task_attempts_total"})
	require.NoError(t, err)

	counter.Inc()
	require.NoError(t, registry.Flush(context.Background()))
	counter.Add(2)
	require.NoError(t, registry.Flush(context.Background()))

	first := <-received
	second := <-received
	assert.Equal(t, 1.0, first[0].Samples[0].Value)
	assert.Equal(t, 3.0, second[0].Samples[0].Value)
}

func TestPushRegistry_FlushEmptyIsNoop(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://127.0.0.1:1"})
	assert.NoError(t, registry.Flush(context.Background()))
}

func TestPushRegistry_FlushError(t *testing.T) {
	server, _ := remoteWriteServer(t, http.StatusBadRequest)
	registry := NewPushRegistry(PushConfig{URL: server.URL})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "g"})
	require.NoError(t, err)
	gauge.Set(1)

	err = registry.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestPushRegistry_DuplicateName(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:8428"})

	_, err := registry.NewCounter(prometheus.CounterOpts{Name: "dup"})
	require.NoError(t, err)
	_, err = registry.NewGaugeVec(prometheus.GaugeOpts{Name: "dup"}, []string{"a"})
	assert.Error(t, err)
}

func TestPushCounter_RejectsNegative(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:8428"})
	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "c"})
	require.NoError(t, err)

	assert.Panics(t, func() { counter.Add(-1) })
}

func TestSeriesKey_IndependentOfLabelOrder(t *testing.T) {
	a := seriesKey("m", prometheus.Labels{"workflow": "etl", "task": "load"})
	b := seriesKey("m", prometheus.Labels{"task": "load", "workflow": "etl"})
	c := seriesKey("m", prometheus.Labels{"task": "extract", "workflow": "etl"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestScrapeRegistry(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		wantName string
	}{
		{name: "no prefix", prefix: "", wantName: "task_runs_total"},
		{name: "with prefix", prefix: "taskflow", wantName: "taskflow_task_runs_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := NewScrapeRegistry(tt.prefix)
			require.NoError(t, err)

			runs, err := registry.NewCounterVec(prometheus.CounterOpts{
				Name: "task_runs_total",
				Help: "Tasks by state",
			}, []string{"task", "state"})
			require.NoError(t, err)
			runs.With(prometheus.Labels{"task": "load", "state": "succeeded"}).Add(2)

			gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "up", Help: "Up"})
			require.NoError(t, err)
			gauge.Set(1)

			_, err = registry.NewCounterVec(prometheus.CounterOpts{Name: "task_runs_total", Help: "again"}, []string{"task", "state"})
			assert.Error(t, err, "duplicate registration")

			rec := httptest.NewRecorder()
			registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			body := rec.Body.String()
			assert.Contains(t, body, tt.wantName+`{state="succeeded",task="load"} 2`)
			assert.Contains(t, body, "go_goroutines")
		})
	}
}
