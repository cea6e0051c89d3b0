package models

import "time"

// ExecutionStatus is the state of a workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further updates are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// TriggerSource says what started a run.
type TriggerSource string

const (
	TriggerSourceManual   TriggerSource = "manual"
	TriggerSourceAPI      TriggerSource = "api"
	TriggerSourceForm     TriggerSource = "form"
	TriggerSourceSchedule TriggerSource = "schedule"
	TriggerSourceEvent    TriggerSource = "event"
)

// WorkflowExecution is the persisted record of one run.
type WorkflowExecution struct {
	ExecutionID  string          `json:"execution_id"`
	WorkflowID   string          `json:"workflow_id"`
	WorkflowSlug string          `json:"workflow_slug"`
	Trigger      TriggerSource   `json:"trigger"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMs   *int64          `json:"duration_ms,omitempty"`
	Input        map[string]any  `json:"input"`
	Output       map[string]any  `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	Logs         []LogEntry      `json:"logs"`
}

// ExecutionResult is the terminal update applied to a running execution.
type ExecutionResult struct {
	Status      ExecutionStatus
	CompletedAt time.Time
	DurationMs  int64
	Output      map[string]any
	Error       string
	Logs        []LogEntry
}

// Apply copies a terminal result onto the record.
func (e *WorkflowExecution) Apply(result ExecutionResult) {
	completedAt := result.CompletedAt
	duration := result.DurationMs

	e.Status = result.Status
	e.CompletedAt = &completedAt
	e.DurationMs = &duration
	e.Output = result.Output
	e.Error = result.Error
	e.Logs = result.Logs
}
