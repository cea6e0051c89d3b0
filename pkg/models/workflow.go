// Package models defines the core domain models for graph-based workflow execution.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"   // Eligible for triggers and jobs
	WorkflowStatusInactive WorkflowStatus = "inactive" // Stored but never triggered
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily excluded from triggers
)

// IsValid reports whether the status is one of the known workflow states.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusActive, WorkflowStatusInactive, WorkflowStatusPaused:
		return true
	default:
		return false
	}
}

// Workflow is a declarative graph of nodes and edges addressed by its slug.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"                  validate:"required,min=3"`
	Slug        string         `json:"slug"                  validate:"required,min=1,max=128"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"                validate:"required,oneof=active inactive paused"`
	Version     int            `json:"version"`
	Canvas      Canvas         `json:"canvas"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Canvas holds the graph itself.
type Canvas struct {
	Nodes []*Node `json:"nodes" validate:"dive"`
	Edges []*Edge `json:"edges" validate:"dive"`
}

// Edge is a directed dependency: Target runs after Source.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// IsActive reports whether the workflow may be started by triggers and jobs.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(id string) *Node {
	for _, node := range w.Canvas.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNodes returns every node whose kind is a trigger kind.
func (w *Workflow) TriggerNodes() []*Node {
	triggers := make([]*Node, 0)

	for _, node := range w.Canvas.Nodes {
		if node.Kind().IsTrigger() {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
