package setvariable

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVariableNode(t *testing.T) {
	execCtx := models.NewExecutionContext("e", "w", "s", nil)
	value := map[string]any{"tier": "gold", "limits": map[string]any{"daily": float64(5)}}

	node, err := NewSetVariableNode("assign", map[string]any{"name": "customer", "value": value})
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), execCtx, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "customer", "value": value}, result)

	stored, ok := execCtx.Variable("customer")
	require.True(t, ok)
	assert.Equal(t, value, stored)
}

func TestSetVariableNode_RequiresName(t *testing.T) {
	_, err := NewSetVariableNodeFactory().Create(context.Background(), "assign", map[string]any{"value": 1})
	require.EqualError(t, err, "missing required field 'name'")
}
