package condition

import (
	"context"

	"github.com/dukex/flowforge/pkg/expressions"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

// ConditionNodeFactory creates ConditionNode instances.
type ConditionNodeFactory struct {
	engine *expressions.ExprEngine
}

func NewConditionNodeFactory(engine *expressions.ExprEngine) protocol.NodeFactory {
	if engine == nil {
		engine = expressions.NewExprEngine()
	}

	return &ConditionNodeFactory{engine: engine}
}

func (f *ConditionNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewConditionNode(id, config, f.engine)
}

func (f *ConditionNodeFactory) Kind() models.NodeKind {
	return models.NodeKindCondition
}

func (f *ConditionNodeFactory) Name() string {
	return "Condition"
}

func (f *ConditionNodeFactory) Description() string {
	return "Compares a variable with a value and reports the matching branch"
}

func (f *ConditionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"description": "Dot path of the variable to test, e.g. fetch.data.status",
			},
			"operator": map[string]any{
				"type":    "string",
				"default": string(OperatorEquals),
				"enum": []string{
					string(OperatorEquals), string(OperatorNotEquals),
					string(OperatorContains), string(OperatorNotContains),
					string(OperatorGreaterThan), string(OperatorLessThan),
					string(OperatorGreaterThanOrEqual), string(OperatorLessThanOrEqual),
					string(OperatorStartsWith), string(OperatorEndsWith),
					string(OperatorRegex), string(OperatorIsEmpty), string(OperatorIsNotEmpty),
					string(OperatorExpression),
				},
			},
			"value":      map[string]any{"description": "Value to compare against"},
			"expression": map[string]any{"type": "string", "description": "Boolean expr-lang expression, for the expression operator"},
		},
	}
}
