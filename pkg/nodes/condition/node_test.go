package condition

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowforge/pkg/expressions"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		operator Operator
		actual   any
		expected any
		want     bool
	}{
		{OperatorEquals, "active", "active", true},
		{OperatorEquals, float64(200), "200", true},
		{OperatorEquals, nil, nil, true},
		{OperatorEquals, nil, "x", false},
		{OperatorNotEquals, "a", "b", true},
		{OperatorContains, "hello world", "world", true},
		{OperatorContains, []any{"a", float64(2)}, "2", true},
		{OperatorNotContains, []any{"a"}, "b", true},
		{OperatorGreaterThan, float64(10), "5", true},
		{OperatorGreaterThan, "abc", float64(5), false},
		{OperatorLessThan, 3, float64(5), true},
		{OperatorGreaterThanOrEqual, float64(5), float64(5), true},
		{OperatorLessThanOrEqual, float64(6), float64(5), false},
		{OperatorStartsWith, "flowforge", "flow", true},
		{OperatorEndsWith, "flowforge", "forge", true},
		{OperatorRegex, "a@b.c", `^[^@]+@[^@]+$`, true},
		{OperatorRegex, nil, `.*`, false},
		{OperatorIsEmpty, "  ", nil, true},
		{OperatorIsEmpty, []any{}, nil, true},
		{OperatorIsEmpty, float64(0), nil, false},
		{OperatorIsNotEmpty, map[string]any{"a": 1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.operator), func(t *testing.T) {
			got, err := Evaluate(tt.operator, tt.actual, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := Evaluate("between", 1, 2)
	require.ErrorIs(t, err, ErrUnknownOperator)

	_, err = Evaluate(OperatorRegex, "x", "(")
	require.Error(t, err)
}

func TestConditionNode_Execute(t *testing.T) {
	node, err := NewConditionNode("check", map[string]any{
		"field":    "fetch.status",
		"operator": "equals",
		"value":    float64(200),
	}, expressions.NewExprEngine())
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("e", "w", "s", nil)
	execCtx.SetVariable("fetch", map[string]any{"status": 200})

	result, err := node.Execute(context.Background(), execCtx, slog.Default())
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, true, out["result"])
	assert.Equal(t, "true", out["branch"])
	assert.Equal(t, "fetch.status", out["field"])
	assert.Equal(t, "equals", out["operator"])
	assert.Equal(t, 200, out["actual"])
}

func TestConditionNode_Expression(t *testing.T) {
	node, err := NewConditionNode("check", map[string]any{
		"operator":   "expression",
		"expression": `input.age >= 18`,
	}, expressions.NewExprEngine())
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("e", "w", "s", map[string]any{"age": float64(16)})

	result, err := node.Execute(context.Background(), execCtx, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "false", result.(map[string]any)["branch"])
}

func TestConditionNode_UnknownOperatorFailsAtExecution(t *testing.T) {
	node, err := NewConditionNode("check", map[string]any{"field": "x", "operator": "between"}, expressions.NewExprEngine())
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), models.NewExecutionContext("e", "w", "s", nil), slog.Default())
	require.ErrorIs(t, err, ErrUnknownOperator)
}

func TestNewConditionNode_RequiresField(t *testing.T) {
	_, err := NewConditionNode("check", map[string]any{"operator": "equals"}, nil)
	require.EqualError(t, err, "missing required field 'field'")
}
