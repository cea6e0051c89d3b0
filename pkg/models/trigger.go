package models

import "time"

// Well-known trigger event source types.
const (
	SourceTypeForm     = "form"
	SourceTypeWebhook  = "webhook"
	SourceTypeManual   = "manual"
	SourceTypeSchedule = "schedule"
)

// TriggerEvent is an external occurrence that may start workflows.
type TriggerEvent struct {
	SourceType       string         `json:"source_type"       validate:"required"`
	SourceIdentifier string         `json:"source_identifier"`
	CorrelationID    string         `json:"correlation_id,omitempty"`
	Payload          map[string]any `json:"payload"`
}

// DeadLetter records an asynchronously dispatched run that failed or never started.
type DeadLetter struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"`
	WorkflowSlug     string         `json:"workflow_slug"`
	ExecutionID      string         `json:"execution_id,omitempty"`
	SourceType       string         `json:"source_type"`
	SourceIdentifier string         `json:"source_identifier"`
	CorrelationID    string         `json:"correlation_id,omitempty"`
	Payload          map[string]any `json:"payload"`
	Error            string         `json:"error"`
	FailedAt         time.Time      `json:"failed_at"`
}
