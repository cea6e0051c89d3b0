package setvariable

import (
	"context"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type SetVariableNodeFactory struct{}

func NewSetVariableNodeFactory() protocol.NodeFactory {
	return &SetVariableNodeFactory{}
}

func (f *SetVariableNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewSetVariableNode(id, config)
}

func (f *SetVariableNodeFactory) Kind() models.NodeKind {
	return models.NodeKindSetVariable
}

func (f *SetVariableNodeFactory) Name() string {
	return "Set Variable"
}

func (f *SetVariableNodeFactory) Description() string {
	return "Stores a value under a variable name for later nodes"
}

func (f *SetVariableNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"value": map[string]any{"description": "String, number or nested object"},
		},
		"required": []string{"name"},
	}
}
