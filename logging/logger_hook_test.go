package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingLoggerHook_KeysByTask(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))
	hook := NewCapturingLoggerHook(NewLogCollector())

	extract := hook.LoggerForTask(base.With("task", "extract"), "extract")
	load := hook.LoggerForTask(base.With("task", "load"), "load")
	require.NotSame(t, extract, load)

	extract.Info("from extract")
	load.Info("from load")
	hook.LoggerForTask(base, "load").Info("load again")

	collector := hook.Collector()
	require.Len(t, collector.GetLogs("extract"), 1)
	require.Len(t, collector.GetLogs("load"), 2)
	assert.Equal(t, "from extract", collector.GetLogs("extract")[0].Message)
	assert.Equal(t, []string{"from load", "load again"},
		[]string{collector.GetLogs("load")[0].Message, collector.GetLogs("load")[1].Message})
}

func TestCapturingLoggerHook_KeepsBaseAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil)).With("workflow", "etl")
	hook := NewCapturingLoggerHook(NewLogCollector())

	hook.LoggerForTask(base, "extract").Info("started")

	assert.Contains(t, buf.String(), `"workflow":"etl"`)
	logs := hook.Collector().GetLogs("extract")
	require.Len(t, logs, 1)
	// Attributes attached to the base handler are rendered by it, not re-captured.
	assert.NotContains(t, logs[0].Attributes, "workflow")
}

func TestLoggerHookFunc(t *testing.T) {
	var got string
	hook := LoggerHookFunc(func(base *slog.Logger, task string) *slog.Logger {
		got = task
		return base.With("wrapped", true)
	})

	logger := hook.LoggerForTask(slog.Default(), "transform")
	assert.Equal(t, "transform", got)
	assert.NotNil(t, logger)
}

func TestContextLogger(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.Same(t, slog.Default(), FromContext(WithLogger(context.Background(), nil)))
}
