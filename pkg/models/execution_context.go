package models

import (
	"maps"
	"sync"
	"time"
)

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel maps free-form input to a level, defaulting to info.
func ParseLogLevel(level string) LogLevel {
	switch LogLevel(level) {
	case LogLevelDebug, LogLevelWarn, LogLevelError:
		return LogLevel(level)
	case "warning":
		return LogLevelWarn
	default:
		return LogLevelInfo
	}
}

// LogEntry is one line of an execution log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// ExecutionContext is the mutable state of a single workflow run.
// Node outputs land in Variables under the node id and under "<id>_output".
type ExecutionContext struct {
	ExecutionID  string
	WorkflowID   string
	WorkflowSlug string
	Input        map[string]any

	mu        sync.RWMutex
	variables map[string]any
	logs      []LogEntry
}

// NewExecutionContext seeds variables with a copy of the input plus an "input" alias.
func NewExecutionContext(executionID, workflowID, workflowSlug string, input map[string]any) *ExecutionContext {
	if input == nil {
		input = map[string]any{}
	}

	variables := maps.Clone(input)
	if _, exists := variables["input"]; !exists {
		variables["input"] = maps.Clone(input)
	}

	return &ExecutionContext{
		ExecutionID:  executionID,
		WorkflowID:   workflowID,
		WorkflowSlug: workflowSlug,
		Input:        maps.Clone(input),
		variables:    variables,
		logs:         make([]LogEntry, 0),
	}
}

// SetVariable stores a value under name.
func (c *ExecutionContext) SetVariable(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.variables[name] = value
}

// Variable returns the value stored under name.
func (c *ExecutionContext) Variable(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.variables[name]

	return value, ok
}

// Variables returns a shallow copy of the variable set.
func (c *ExecutionContext) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.variables)
}

// Log appends an entry to the execution log.
func (c *ExecutionContext) Log(level LogLevel, message, nodeID string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = append(c.logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		NodeID:    nodeID,
		Data:      data,
	})
}

// Logs returns a copy of the execution log.
func (c *ExecutionContext) Logs() []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs := make([]LogEntry, len(c.logs))
	copy(logs, c.logs)

	return logs
}
