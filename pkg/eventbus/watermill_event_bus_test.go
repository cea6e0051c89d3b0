package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowforge/pkg/channels/gochannel"
	"github.com/dukex/flowforge/pkg/eventbus"
	"github.com/dukex/flowforge/pkg/events"
	"github.com/dukex/flowforge/pkg/models"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)

	t.Cleanup(func() {
		require.NoError(t, bus.Close())
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.WorkflowTriggered, 1)

	require.NoError(t, bus.Handle(events.WorkflowTriggeredEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowTriggered)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "wf-1", events.WorkflowTriggered{
		BaseEvent:        events.NewBaseEvent(events.WorkflowTriggeredEvent, "wf-1", "order-intake"),
		Trigger:          models.TriggerSourceForm,
		SourceType:       models.SourceTypeForm,
		SourceIdentifier: "contact",
		Payload:          map[string]any{"name": "ana"},
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "order-intake", event.WorkflowSlug)
		assert.Equal(t, "contact", event.SourceIdentifier)
		assert.Equal(t, "ana", event.Payload["name"])
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_HandlerErrorDoesNotBlockLaterEvents(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan string, 2)

	require.NoError(t, bus.Handle(events.WorkflowExecutionFailedEvent, func(_ context.Context, event any) error {
		failed := event.(*events.WorkflowExecutionFailed)
		calls <- failed.ExecutionID

		return errors.New("handler failed")
	}))
	require.NoError(t, bus.Subscribe(ctx))

	for _, id := range []string{"exec-1", "exec-2"} {
		require.NoError(t, bus.Publish(ctx, "wf-1", events.WorkflowExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionFailedEvent, "wf-1", "order-intake"),
			ExecutionID: id,
			Status:      string(models.ExecutionStatusFailed),
			Error:       "boom",
		}))
	}

	for _, want := range []string{"exec-1", "exec-2"} {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("event %s was not delivered", want)
		}
	}
}

func TestWatermillEventBus_HandleRejectsUnknownType(t *testing.T) {
	bus := newBus(t)

	err := bus.Handle("node.activation", func(context.Context, any) error { return nil })
	require.Error(t, err)
}
