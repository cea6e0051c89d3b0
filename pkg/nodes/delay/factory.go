package delay

import (
	"context"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type DelayNodeFactory struct{}

func NewDelayNodeFactory() protocol.NodeFactory {
	return &DelayNodeFactory{}
}

func (f *DelayNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewDelayNode(id, config, nil)
}

func (f *DelayNodeFactory) Kind() models.NodeKind {
	return models.NodeKindDelay
}

func (f *DelayNodeFactory) Name() string {
	return "Delay"
}

func (f *DelayNodeFactory) Description() string {
	return "Pauses the run for a bounded duration"
}

func (f *DelayNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{"type": "number", "minimum": 0},
			"unit": map[string]any{
				"type":    "string",
				"default": string(UnitSeconds),
				"enum":    []string{string(UnitMilliseconds), string(UnitSeconds), string(UnitMinutes), string(UnitHours)},
			},
		},
		"required": []string{"duration"},
	}
}
