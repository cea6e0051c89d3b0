package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNode_Execute(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	execCtx := models.NewExecutionContext("exec-1", "w", "s", nil)

	handler, err := NewLogNodeFactory().Create(context.Background(), "note", map[string]any{
		"message": "order received",
		"level":   "warn",
		"data":    map[string]any{"order": float64(7)},
	})
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), execCtx, logger)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"logged": true, "level": "warn", "message": "order received"}, result)

	logs := execCtx.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogLevelWarn, logs[0].Level)
	assert.Equal(t, "note", logs[0].NodeID)
	assert.Equal(t, map[string]any{"order": float64(7)}, logs[0].Data)

	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"msg":"order received"`)
}

func TestLogNode_DefaultsToInfo(t *testing.T) {
	node := NewLogNode("n", map[string]any{"message": "hi", "level": "loud"})

	result, err := node.Execute(context.Background(), models.NewExecutionContext("e", "w", "s", nil), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "info", result.(map[string]any)["level"])
}
