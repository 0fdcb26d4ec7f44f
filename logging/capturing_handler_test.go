package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(level slog.Level) (*CapturingHandler, *LogCollector, *bytes.Buffer) {
	var buf bytes.Buffer
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})
	return NewCapturingHandler(underlying, collector, "extract"), collector, &buf
}

func TestCapturingHandler_CapturesAndPassesThrough(t *testing.T) {
	handler, collector, buf := newTestHandler(slog.LevelInfo)

	slog.New(handler).Info("rows read", "count", 3, "source", "db")

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 1)
	assert.Equal(t, "INFO", logs[0].Level)
	assert.Equal(t, "rows read", logs[0].Message)
	assert.Equal(t, int64(3), logs[0].Attributes["count"])
	assert.Equal(t, "db", logs[0].Attributes["source"])

	assert.Contains(t, buf.String(), `"msg":"rows read"`)
}

func TestCapturingHandler_CapturesBelowUnderlyingLevel(t *testing.T) {
	handler, collector, buf := newTestHandler(slog.LevelWarn)
	ctx := context.Background()

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		assert.True(t, handler.Enabled(ctx, level))
	}

	logger := slog.New(handler)
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 4)
	assert.Equal(t, []string{"DEBUG", "INFO", "WARN", "ERROR"},
		[]string{logs[0].Level, logs[1].Level, logs[2].Level, logs[3].Level})

	assert.NotContains(t, buf.String(), "debug message")
	assert.NotContains(t, buf.String(), "info message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestCapturingHandler_WithChains(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)

	logger := slog.New(handler).
		With("component", "loader").
		With("host", "localhost")
	logger.Info("chained", "extra", "field")

	_, ok := slog.New(handler).With("k", "v").Handler().(*CapturingHandler)
	assert.True(t, ok, "WithAttrs keeps capturing")
	_, ok = slog.New(handler).WithGroup("g").Handler().(*CapturingHandler)
	assert.True(t, ok, "WithGroup keeps capturing")

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 1)
	assert.Equal(t, map[string]any{
		"component": "loader",
		"host":      "localhost",
		"extra":     "field",
	}, logs[0].Attributes)
}

func TestCapturingHandler_GroupsNest(t *testing.T) {
	handler, collector, buf := newTestHandler(slog.LevelInfo)

	logger := slog.New(handler).With("run", "r1").WithGroup("request").With("id", 7)
	logger.Info("grouped", "path", "/run", slog.Group("client", "ip", "10.0.0.1"))

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 1)
	assert.Equal(t, map[string]any{
		"run": "r1",
		"request": map[string]any{
			"id":     int64(7),
			"path":   "/run",
			"client": map[string]any{"ip": "10.0.0.1"},
		},
	}, logs[0].Attributes)
	assert.Contains(t, buf.String(), `"request":{`)
}

func TestCapturingHandler_DerivedHandlersDoNotShareAttrs(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)

	base := slog.New(handler).WithGroup("g").With("shared", 1)
	base.With("a", 1).Info("first")
	base.With("b", 2).Info("second")

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 2)
	assert.Equal(t, map[string]any{"shared": int64(1), "a": int64(1)}, logs[0].Attributes["g"])
	assert.Equal(t, map[string]any{"shared": int64(1), "b": int64(2)}, logs[1].Attributes["g"])
}

func TestCapturingHandler_ValueKinds(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)
	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	slog.New(handler).Info("kinds",
		"string", "value",
		"int", 42,
		"bool", true,
		"float", 3.14,
		"duration", 1500*time.Millisecond,
		"time", when,
		"error", errors.New("connection refused"),
	)

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 1)
	attrs := logs[0].Attributes
	assert.Equal(t, "value", attrs["string"])
	assert.Equal(t, int64(42), attrs["int"])
	assert.Equal(t, true, attrs["bool"])
	assert.InDelta(t, 3.14, attrs["float"], 0.001)
	assert.Equal(t, "1.5s", attrs["duration"])
	assert.Equal(t, when, attrs["time"])
	assert.Equal(t, "connection refused", attrs["error"])
}

func TestCapturingHandler_NoAttributes(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)

	slog.New(handler).Info("")

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].Message)
	assert.Empty(t, logs[0].Attributes)
}

func TestCapturingHandler_Concurrent(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)
	logger := slog.New(handler)

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l := logger.With("worker", n)
			for j := 0; j < perGoroutine; j++ {
				l.Info("tick", "n", j)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.GetLogs("extract"), goroutines*perGoroutine)
}
