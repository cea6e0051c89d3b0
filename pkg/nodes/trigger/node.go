// Package trigger provides handlers for the trigger node kinds. Trigger nodes
// anchor a workflow's entry point and carry matching configuration; the
// executor skips them, so their handlers do nothing.
package trigger

import (
	"context"
	"log/slog"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type TriggerNode struct {
	id   string
	kind models.NodeKind
}

func (n *TriggerNode) ID() string {
	return n.id
}

func (n *TriggerNode) Kind() models.NodeKind {
	return n.kind
}

func (n *TriggerNode) Execute(context.Context, *models.ExecutionContext, *slog.Logger) (any, error) {
	return map[string]any{"triggered": true}, nil
}

type TriggerNodeFactory struct {
	kind        models.NodeKind
	name        string
	description string
	schema      map[string]any
}

// NewTriggerNodeFactories returns one factory per trigger kind.
func NewTriggerNodeFactories() []protocol.NodeFactory {
	return []protocol.NodeFactory{
		&TriggerNodeFactory{
			kind:        models.NodeKindTrigger,
			name:        "Trigger",
			description: "Generic event trigger",
			schema: properties(map[string]any{
				"sourceType":       map[string]any{"type": "string"},
				"sourceIdentifier": map[string]any{"type": "string", "description": "Exact identifier or * for any"},
				"schema":           map[string]any{"type": "object", "description": "JSON Schema the payload must satisfy"},
			}),
		},
		&TriggerNodeFactory{
			kind:        models.NodeKindFormTrigger,
			name:        "Form Trigger",
			description: "Starts the workflow when a form is submitted",
			schema: properties(map[string]any{
				"formSlug": map[string]any{"type": "string", "description": "Form slug or * for any form"},
				"schema":   map[string]any{"type": "object"},
			}),
		},
		&TriggerNodeFactory{
			kind:        models.NodeKindScheduleTrigger,
			name:        "Schedule Trigger",
			description: "Starts the workflow on a cron schedule",
			schema: properties(map[string]any{
				"cron":  map[string]any{"type": "string", "description": "Cron expression, e.g. */5 * * * *"},
				"input": map[string]any{"type": "object"},
			}),
		},
		&TriggerNodeFactory{
			kind:        models.NodeKindManualTrigger,
			name:        "Manual Trigger",
			description: "Starts the workflow on demand",
			schema:      properties(map[string]any{}),
		},
		&TriggerNodeFactory{
			kind:        models.NodeKindWebhookTrigger,
			name:        "Webhook Trigger",
			description: "Starts the workflow from an inbound webhook",
			schema: properties(map[string]any{
				"sourceIdentifier": map[string]any{"type": "string"},
				"schema":           map[string]any{"type": "object"},
			}),
		},
	}
}

func properties(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func (f *TriggerNodeFactory) Create(_ context.Context, id string, _ map[string]any) (protocol.Handler, error) {
	return &TriggerNode{id: id, kind: f.kind}, nil
}

func (f *TriggerNodeFactory) Kind() models.NodeKind {
	return f.kind
}

func (f *TriggerNodeFactory) Name() string {
	return f.name
}

func (f *TriggerNodeFactory) Description() string {
	return f.description
}

func (f *TriggerNodeFactory) Schema() map[string]any {
	return f.schema
}
