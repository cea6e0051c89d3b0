package setvariable

import (
	"context"
	"log/slog"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
)

// SetVariableNode assigns a value to a named variable of the run.
type SetVariableNode struct {
	id    string
	name  string
	value any
}

func NewSetVariableNode(id string, config map[string]any) (*SetVariableNode, error) {
	name, err := nodes.RequiredString(config, "name")
	if err != nil {
		return nil, err
	}

	return &SetVariableNode{id: id, name: name, value: config["value"]}, nil
}

func (n *SetVariableNode) ID() string {
	return n.id
}

func (n *SetVariableNode) Kind() models.NodeKind {
	return models.NodeKindSetVariable
}

func (n *SetVariableNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	execCtx.SetVariable(n.name, n.value)

	logger.DebugContext(ctx, "Variable set", "name", n.name)

	return map[string]any{"name": n.name, "value": n.value}, nil
}
