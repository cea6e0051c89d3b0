package log

import (
	"context"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type LogNodeFactory struct{}

func NewLogNodeFactory() protocol.NodeFactory {
	return &LogNodeFactory{}
}

func (f *LogNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewLogNode(id, config), nil
}

func (f *LogNodeFactory) Kind() models.NodeKind {
	return models.NodeKindLog
}

func (f *LogNodeFactory) Name() string {
	return "Log"
}

func (f *LogNodeFactory) Description() string {
	return "Writes a message to the execution log"
}

func (f *LogNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level": map[string]any{
				"type":    "string",
				"default": string(models.LogLevelInfo),
				"enum": []string{
					string(models.LogLevelDebug), string(models.LogLevelInfo),
					string(models.LogLevelWarn), string(models.LogLevelError),
				},
			},
			"data": map[string]any{"description": "Structured payload attached to the entry"},
		},
	}
}
