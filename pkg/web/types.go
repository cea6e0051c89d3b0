// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"time"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

// WorkflowRequest is the body accepted by create and update. Identity, version
// and timestamps are owned by the server.
type WorkflowRequest struct {
	Name        string                `json:"name"                  validate:"required,min=3"`
	Slug        string                `json:"slug,omitempty"        validate:"omitempty,max=128"`
	Description string                `json:"description,omitempty"`
	Status      models.WorkflowStatus `json:"status,omitempty"      validate:"omitempty,oneof=active inactive paused"`
	Canvas      models.Canvas         `json:"canvas"`
}

// ToModel converts the request into a workflow document.
func (r WorkflowRequest) ToModel() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		Status:      r.Status,
		Canvas:      r.Canvas,
	}
}

// ExecuteRequest runs a workflow synchronously.
type ExecuteRequest struct {
	Input map[string]any `json:"input"`
}

// ScheduleRequest defers a run. A missing scheduled_for means now.
type ScheduleRequest struct {
	Input        map[string]any `json:"input"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
	MaxRetries   *int           `json:"max_retries,omitempty"   validate:"omitempty,min=0,max=100"`
}

// TriggerResponse reports how many workflow runs were queued for an event.
type TriggerResponse struct {
	Dispatched int `json:"dispatched"`
}

// NodeResponse describes one registered node kind.
type NodeResponse struct {
	Kind        models.NodeKind `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Trigger     bool            `json:"trigger"`
	Schema      map[string]any  `json:"schema"`
}

// TransformNodeResponse converts a registered factory into its API shape.
func TransformNodeResponse(factory protocol.NodeFactory) NodeResponse {
	return NodeResponse{
		Kind:        factory.Kind(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Trigger:     factory.Kind().IsTrigger(),
		Schema:      factory.Schema(),
	}
}
