package transform

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() *models.ExecutionContext {
	execCtx := models.NewExecutionContext("e", "w", "s", map[string]any{"name": "Ada"})
	execCtx.SetVariable("fetch", map[string]any{
		"data": map[string]any{
			"users": []any{
				map[string]any{"id": float64(1), "name": "a", "role": "admin", "profile": map[string]any{"city": "Lisbon"}},
				map[string]any{"id": float64(2), "name": "b", "role": "user", "profile": map[string]any{"city": "Porto"}},
			},
			"meta": map[string]any{"total": float64(2)},
		},
	})
	execCtx.SetVariable("defaults", map[string]any{"role": "user", "active": true})

	return execCtx
}

func run(t *testing.T, config map[string]any) any {
	t.Helper()

	node, err := NewTransformNodeFactory(Engines{}).Create(context.Background(), "t", config)
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), newContext(), slog.Default())
	require.NoError(t, err)

	return result
}

func TestTransform_Map(t *testing.T) {
	result := run(t, map[string]any{
		"mode":   "map",
		"source": "fetch.data.users",
		"mapping": map[string]any{
			"userId": "id",
			"city":   "$.profile.city",
		},
	})

	assert.Equal(t, []any{
		map[string]any{"userId": float64(1), "city": "Lisbon"},
		map[string]any{"userId": float64(2), "city": "Porto"},
	}, result)
}

func TestTransform_MapObject(t *testing.T) {
	result := run(t, map[string]any{
		"mode":    "map",
		"source":  "fetch.data",
		"mapping": map[string]any{"total": "meta.total", "missing": "nope"},
	})

	assert.Equal(t, map[string]any{"total": float64(2), "missing": nil}, result)
}

func TestTransform_Filter(t *testing.T) {
	result := run(t, map[string]any{
		"mode":   "filter",
		"source": "fetch.data.users",
		"field":  "role",
		"value":  "admin",
	})

	list := result.([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].(map[string]any)["name"])
}

func TestTransform_Pick(t *testing.T) {
	result := run(t, map[string]any{
		"mode":   "pick",
		"source": "fetch.data.users",
		"fields": []any{"name"},
	})

	assert.Equal(t, []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}, result)
}

func TestTransform_Merge(t *testing.T) {
	result := run(t, map[string]any{
		"mode":    "merge",
		"sources": []any{"defaults", "input", "absent"},
	})

	assert.Equal(t, map[string]any{"role": "user", "active": true, "name": "Ada"}, result)
}

func TestTransform_Template(t *testing.T) {
	execCtx := newContext()
	execCtx.SetVariable("comment", "{{input.name}}")

	// The executor hands over config already resolved against the variables.
	config := template.ResolveMap(map[string]any{
		"mode":     "template",
		"template": map[string]any{"greeting": "Hello {{input.name}}", "quoted": "{{comment}}"},
	}, execCtx.Variables())

	node, err := NewTransformNodeFactory(Engines{}).Create(context.Background(), "t", config)
	require.NoError(t, err)

	result, err := node.Execute(context.Background(), execCtx, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"greeting": "Hello Ada", "quoted": "{{input.name}}"}, result)
}

func TestTransform_JQ(t *testing.T) {
	result := run(t, map[string]any{
		"mode":       "jq",
		"source":     "fetch.data",
		"expression": `[.users[] | .name]`,
	})

	assert.Equal(t, []any{"a", "b"}, result)
}

func TestTransform_Expr(t *testing.T) {
	result := run(t, map[string]any{
		"mode":       "expr",
		"source":     "fetch.data.meta",
		"expression": `source.total * 10`,
	})

	assert.EqualValues(t, 20, result)
}

func TestTransform_UnknownModePassesThrough(t *testing.T) {
	result := run(t, map[string]any{
		"mode":   "explode",
		"source": "defaults",
	})

	assert.Equal(t, map[string]any{"role": "user", "active": true}, result)
}

func TestTransform_ConfigErrors(t *testing.T) {
	factory := NewTransformNodeFactory(Engines{})

	_, err := factory.Create(context.Background(), "t", map[string]any{"mode": "jq"})
	require.EqualError(t, err, "missing required field 'expression'")

	_, err = factory.Create(context.Background(), "t", map[string]any{"mode": "map", "mapping": "x"})
	require.ErrorIs(t, err, ErrInvalidMapping)
}
