package script

import (
	"context"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type ScriptNodeFactory struct{}

func NewScriptNodeFactory() protocol.NodeFactory {
	return &ScriptNodeFactory{}
}

func (f *ScriptNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewScriptNode(id, config)
}

func (f *ScriptNodeFactory) Kind() models.NodeKind {
	return models.NodeKindScript
}

func (f *ScriptNodeFactory) Name() string {
	return "Script"
}

func (f *ScriptNodeFactory) Description() string {
	return "Runs sandboxed JavaScript with access to input, variables and console"
}

func (f *ScriptNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Function body; the returned value becomes the result",
			},
			"timeout": map[string]any{
				"type":        "number",
				"default":     DefaultTimeout.Milliseconds(),
				"description": "Milliseconds before the script is interrupted",
			},
		},
		"required": []string{"code"},
	}
}
