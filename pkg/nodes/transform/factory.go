package transform

import (
	"context"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type TransformNodeFactory struct {
	engines Engines
}

func NewTransformNodeFactory(engines Engines) protocol.NodeFactory {
	return &TransformNodeFactory{engines: engines}
}

func (f *TransformNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	if err := validateMapping(config); err != nil {
		return nil, err
	}

	return NewTransformNode(id, config, f.engines)
}

func (f *TransformNodeFactory) Kind() models.NodeKind {
	return models.NodeKindTransform
}

func (f *TransformNodeFactory) Name() string {
	return "Transform"
}

func (f *TransformNodeFactory) Description() string {
	return "Reshapes variables with mappings, filters, projections, templates, jq or expr-lang"
}

func (f *TransformNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode": map[string]any{
				"type":    "string",
				"default": string(ModeMap),
				"enum": []string{
					string(ModeMap), string(ModeFilter), string(ModePick), string(ModeMerge),
					string(ModeTemplate), string(ModeJQ), string(ModeExpr),
				},
			},
			"source":     map[string]any{"type": "string", "description": "Variable path of the input; all variables when omitted"},
			"mapping":    map[string]any{"type": "object", "description": "Output key to path, JSONPath when prefixed with $"},
			"field":      map[string]any{"type": "string"},
			"value":      map[string]any{},
			"fields":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"sources":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"template":   map[string]any{},
			"expression": map[string]any{"type": "string"},
		},
	}
}
