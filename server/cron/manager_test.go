package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCronTriggerManager(t *testing.T) {
	runnable := &mockRunnable{}

	manager, err := NewCronTriggerManager("etl,report:0 2 * * *;cleanup:0 3 * * *", runnable, quietLogger(), testWorkflows)
	require.NoError(t, err)
	require.Len(t, manager.triggers, 2)

	specs := manager.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, []string{"etl", "report"}, specs[0].Workflows)
	assert.Equal(t, "0 3 * * *", specs[1].CronSpec)
}

func TestNewCronTriggerManager_InvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{name: "empty spec", spec: ""},
		{name: "missing colon", spec: "etl"},
		{name: "invalid cron", spec: "etl:invalid"},
		{name: "unknown workflow", spec: "unknown:0 2 * * *"},
		{name: "duplicate workflow in trigger", spec: "etl,etl:0 2 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewCronTriggerManager(tt.spec, &mockRunnable{}, quietLogger(), testWorkflows)
			assert.ErrorIs(t, err, ErrInvalidCronSpec)
			assert.Nil(t, manager)
		})
	}
}

func TestCronTriggerManager_NextRun(t *testing.T) {
	manager, err := NewCronTriggerManager("etl:0 2 * * *;cleanup:* * * * *", &mockRunnable{}, quietLogger(), testWorkflows)
	require.NoError(t, err)

	next := manager.NextRun()
	assert.True(t, time.Until(next) <= time.Minute, "the every-minute trigger is the earliest")
	assert.True(t, manager.triggers[0].NextRun().After(next) || manager.triggers[0].NextRun().Equal(next))

	empty := &CronTriggerManager{}
	assert.True(t, empty.NextRun().IsZero())
}

func TestCronTriggerManager_RunsEachTriggersWorkflows(t *testing.T) {
	runnable := &mockRunnable{}
	manager, err := NewCronTriggerManager("etl,report:0 2 * * *", runnable, quietLogger(), testWorkflows)
	require.NoError(t, err)

	// Fire the trigger's callback directly instead of waiting for 2am.
	require.NoError(t, manager.triggers[0].fn())
	assert.Equal(t, [][]string{{"etl", "report"}}, runnable.calls())

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)
	cancel()
	assert.Equal(t, int32(1), runnable.runCount.Load())
}
