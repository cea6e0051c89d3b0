// Package events defines the messages exchanged on the event bus for
// trigger dispatch and execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/flowforge/pkg/models"
)

type EventType string

// Topic carries every flowforge event.
const Topic = "flowforge.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowTriggeredEvent          EventType = "workflow.triggered"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowSlug string         `json:"workflow_slug"`
	WorkerID     string         `json:"worker_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// WorkflowTriggered asks a consumer to run a workflow matched by a trigger event.
type WorkflowTriggered struct {
	BaseEvent

	TriggerNodeID    string               `json:"trigger_node_id"`
	Trigger          models.TriggerSource `json:"trigger"`
	SourceType       string               `json:"source_type"`
	SourceIdentifier string               `json:"source_identifier"`
	CorrelationID    string               `json:"correlation_id,omitempty"`
	Payload          map[string]any       `json:"payload,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	DurationMs    int64          `json:"duration_ms"`
	Output        map[string]any `json:"output,omitempty"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID   string `json:"execution_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Status        string `json:"status"`
	Error         string `json:"error"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

func NewBaseEvent(eventType EventType, workflowID, workflowSlug string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		WorkflowID:   workflowID,
		WorkflowSlug: workflowSlug,
		Metadata:     make(map[string]any),
	}
}

// New returns an empty event value for eventType, or nil when the type is unknown.
func New(eventType EventType) any {
	switch eventType {
	case WorkflowTriggeredEvent:
		return &WorkflowTriggered{}
	case WorkflowExecutionCompletedEvent:
		return &WorkflowExecutionCompleted{}
	case WorkflowExecutionFailedEvent:
		return &WorkflowExecutionFailed{}
	default:
		return nil
	}
}
