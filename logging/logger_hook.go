package logging

import (
	"log/slog"
)

// LoggerHook creates task-specific loggers by wrapping a base logger.
// The workflow engine calls it once per dispatched task.
type LoggerHook interface {
	// LoggerForTask wraps baseLogger, which already carries the workflow and
	// task attributes.
	LoggerForTask(baseLogger *slog.Logger, task string) *slog.Logger
}

// LoggerHookFunc adapts a function to LoggerHook.
type LoggerHookFunc func(baseLogger *slog.Logger, task string) *slog.Logger

// LoggerForTask calls f.
func (f LoggerHookFunc) LoggerForTask(baseLogger *slog.Logger, task string) *slog.Logger {
	return f(baseLogger, task)
}

// CapturingLoggerHook creates loggers whose records are also stored in a LogCollector.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures every task's logs into collector.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// LoggerForTask wraps the base handler in a CapturingHandler keyed by task.
func (p *CapturingLoggerHook) LoggerForTask(baseLogger *slog.Logger, task string) *slog.Logger {
	return slog.New(NewCapturingHandler(baseLogger.Handler(), p.collector, task))
}

// Collector returns the collector the hook writes to.
func (p *CapturingLoggerHook) Collector() *LogCollector {
	return p.collector
}
