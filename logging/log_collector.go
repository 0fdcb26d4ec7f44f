package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"` // "DEBUG", "INFO", "WARN", "ERROR"
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCollector stores captured log entries grouped by task name.
// It is safe for concurrent use.
type LogCollector struct {
	mu    sync.RWMutex
	logs  map[string][]LogEntry // task name -> entries in arrival order
	order []string              // task names in order of first entry
}

// NewLogCollector creates an empty LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{
		logs: make(map[string][]LogEntry),
	}
}

// AddLog appends an entry for the named task.
func (c *LogCollector) AddLog(task string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.logs[task]; !seen {
		c.order = append(c.order, task)
	}
	c.logs[task] = append(c.logs[task], entry)
}

// GetLogs returns a copy of the entries for one task, or nil.
func (c *LogCollector) GetLogs(task string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, exists := c.logs[task]
	if !exists {
		return nil
	}
	return append([]LogEntry(nil), logs...)
}

// GetAllLogs returns a copy of every task's entries.
func (c *LogCollector) GetAllLogs() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]LogEntry, len(c.logs))
	for task, logs := range c.logs {
		result[task] = append([]LogEntry(nil), logs...)
	}
	return result
}

// Tasks returns the names of tasks that logged something, in order of their
// first entry.
func (c *LogCollector) Tasks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Len returns the total number of stored entries.
func (c *LogCollector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, logs := range c.logs {
		n += len(logs)
	}
	return n
}

// Clear removes all stored entries.
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = make(map[string][]LogEntry)
	c.order = nil
}
