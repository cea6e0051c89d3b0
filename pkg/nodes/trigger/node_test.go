package trigger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerNodeFactories(t *testing.T) {
	factories := NewTriggerNodeFactories()
	require.Len(t, factories, 5)

	for _, factory := range factories {
		assert.True(t, factory.Kind().IsTrigger(), factory.Kind())
		assert.NotEmpty(t, factory.Name())

		handler, err := factory.Create(context.Background(), "start", nil)
		require.NoError(t, err)
		assert.Equal(t, factory.Kind(), handler.Kind())

		result, err := handler.Execute(context.Background(), models.NewExecutionContext("e", "w", "s", nil), slog.Default())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"triggered": true}, result)
	}
}
