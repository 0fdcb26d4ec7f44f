package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunnable is a test implementation of Runnable.
type mockRunnable struct {
	mu        sync.Mutex
	runCount  atomic.Int32
	runErr    error
	workflows [][]string
}

func (m *mockRunnable) Run(workflows []string) error {
	m.runCount.Add(1)
	m.mu.Lock()
	m.workflows = append(m.workflows, workflows)
	m.mu.Unlock()
	return m.runErr
}

func (m *mockRunnable) calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.workflows...)
}

// every fires at a fixed interval.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCronTrigger(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily at 2am", spec: "0 2 * * *"},
		{name: "every hour", spec: "0 * * * *"},
		{name: "every minute", spec: "* * * * *"},
		{name: "descriptor", spec: "@daily"},
		{name: "empty", spec: "", wantErr: true},
		{name: "wrong format", spec: "not a cron spec", wantErr: true},
		{name: "out of range", spec: "0 25 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewCronTrigger(tt.spec, func() error { return nil }, quietLogger())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
				return
			}
			require.NoError(t, err)
			assert.True(t, trigger.NextRun().After(time.Now()))
		})
	}
}

func TestCronTrigger_NextRun(t *testing.T) {
	trigger, err := NewCronTrigger("0 2 * * *", func() error { return nil }, quietLogger())
	require.NoError(t, err)

	next := trigger.NextRun()
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, time.Until(next) <= 24*time.Hour)
}

func TestCronTrigger_FiresUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	trigger := newTrigger("test", every(10*time.Millisecond), func() error {
		calls.Add(1)
		return errors.New("run already in progress")
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"errors do not stop the trigger")

	cancel()
	time.Sleep(30 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no runs after cancellation")
}

func TestCronTrigger_CancelBeforeFirstRun(t *testing.T) {
	var calls atomic.Int32
	trigger := newTrigger("test", every(time.Hour), func() error {
		calls.Add(1)
		return nil
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
