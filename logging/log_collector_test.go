package logging

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(msg string) LogEntry {
	return LogEntry{Time: time.Now(), Level: "INFO", Message: msg}
}

func TestLogCollector_AddAndGet(t *testing.T) {
	collector := NewLogCollector()
	collector.AddLog("extract", entry("reading source"))
	collector.AddLog("extract", entry("read 3 rows"))
	collector.AddLog("load", entry("writing"))

	logs := collector.GetLogs("extract")
	require.Len(t, logs, 2)
	assert.Equal(t, "reading source", logs[0].Message)
	assert.Equal(t, "read 3 rows", logs[1].Message)

	assert.Nil(t, collector.GetLogs("transform"))
	assert.Equal(t, 3, collector.Len())
	assert.Equal(t, []string{"extract", "load"}, collector.Tasks())
}

func TestLogCollector_ReturnsCopies(t *testing.T) {
	collector := NewLogCollector()
	collector.AddLog("extract", entry("original"))

	logs := collector.GetLogs("extract")
	logs[0].Message = "changed"
	assert.Equal(t, "original", collector.GetLogs("extract")[0].Message)

	all := collector.GetAllLogs()
	all["extract"][0].Message = "changed"
	assert.Equal(t, "original", collector.GetAllLogs()["extract"][0].Message)

	tasks := collector.Tasks()
	tasks[0] = "changed"
	assert.Equal(t, []string{"extract"}, collector.Tasks())
}

func TestLogCollector_Clear(t *testing.T) {
	collector := NewLogCollector()
	collector.AddLog("extract", entry("a"))
	collector.AddLog("load", entry("b"))

	collector.Clear()

	assert.Empty(t, collector.GetAllLogs())
	assert.Empty(t, collector.Tasks())
	assert.Zero(t, collector.Len())
}

func TestLogCollector_Concurrent(t *testing.T) {
	collector := NewLogCollector()
	const numTasks = 10
	const logsPerTask = 50

	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			task := fmt.Sprintf("task-%d", n)
			for j := 0; j < logsPerTask; j++ {
				collector.AddLog(task, entry(fmt.Sprintf("message %d", j)))
			}
		}(i)
	}
	wg.Wait()

	all := collector.GetAllLogs()
	assert.Len(t, all, numTasks)
	for task, logs := range all {
		assert.Len(t, logs, logsPerTask, "task %s", task)
		assert.Equal(t, "message 0", logs[0].Message, "entries for one task keep their order")
	}
	assert.Len(t, collector.Tasks(), numTasks)
}
