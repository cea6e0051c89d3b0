package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowforge/pkg/channels/gochannel"
	"github.com/dukex/flowforge/pkg/eventbus"
	"github.com/dukex/flowforge/pkg/events"
	"github.com/dukex/flowforge/pkg/mocks"
	"github.com/dukex/flowforge/pkg/models"
)

type outcomes struct {
	mu        sync.Mutex
	completed []*events.WorkflowExecutionCompleted
	failed    []*events.WorkflowExecutionFailed
}

func (o *outcomes) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.completed) + len(o.failed)
}

func newDispatcherBus(t *testing.T) (*eventbus.WatermillEventBus, *outcomes) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	seen := &outcomes{}

	require.NoError(t, bus.Handle(events.WorkflowExecutionCompletedEvent, func(_ context.Context, event any) error {
		seen.mu.Lock()
		defer seen.mu.Unlock()

		seen.completed = append(seen.completed, event.(*events.WorkflowExecutionCompleted))

		return nil
	}))
	require.NoError(t, bus.Handle(events.WorkflowExecutionFailedEvent, func(_ context.Context, event any) error {
		seen.mu.Lock()
		defer seen.mu.Unlock()

		seen.failed = append(seen.failed, event.(*events.WorkflowExecutionFailed))

		return nil
	}))

	return bus, seen
}

func TestDispatcher_TriggerRunsMatchingWorkflows(t *testing.T) {
	env := newTestEnv(t)
	bus, seen := newDispatcherBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.saveWorkflow(t, graph("contact", []*models.Node{
		node("form", "form_trigger", map[string]any{"formSlug": "contact"}),
		node("greet", "echo", map[string]any{"text": "hi {{input.name}}"}),
	}, edge("form", "greet")))

	env.saveWorkflow(t, graph("broken", []*models.Node{
		node("form", "form_trigger", map[string]any{"formSlug": "*"}),
		node("explode", "fail", map[string]any{"message": "smtp refused"}),
	}, edge("form", "explode")))

	env.saveWorkflow(t, graph("signup", []*models.Node{
		node("form", "form_trigger", map[string]any{"formSlug": "signup"}),
		node("greet", "echo", nil),
	}, edge("form", "greet")))

	dispatcher := NewDispatcher(slog.Default(), env.workflows, env.executor, bus,
		env.store.DeadLetterRepository(), WithWorkerID("worker-test"))
	require.NoError(t, dispatcher.Start(ctx))

	published := dispatcher.Trigger(ctx, models.TriggerEvent{
		SourceType:       models.SourceTypeForm,
		SourceIdentifier: "contact",
		CorrelationID:    "corr-1",
		Payload:          map[string]any{"name": "ada"},
	})
	assert.Equal(t, 2, published)

	require.Eventually(t, func() bool { return seen.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	dispatcher.Wait()

	seen.mu.Lock()
	defer seen.mu.Unlock()

	require.Len(t, seen.completed, 1)
	assert.Equal(t, "contact", seen.completed[0].WorkflowSlug)
	assert.Equal(t, "corr-1", seen.completed[0].CorrelationID)
	assert.Equal(t, "worker-test", seen.completed[0].WorkerID)
	assert.Equal(t, map[string]any{"text": "hi ada"}, seen.completed[0].Output["greet"])

	require.Len(t, seen.failed, 1)
	assert.Equal(t, "broken", seen.failed[0].WorkflowSlug)
	assert.Equal(t, string(models.ExecutionStatusFailed), seen.failed[0].Status)
	assert.Contains(t, seen.failed[0].Error, "smtp refused")

	execution, err := env.store.ExecutionRepository().GetByID(ctx, seen.completed[0].ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerSourceForm, execution.Trigger)

	letters, err := env.store.DeadLetterRepository().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "broken", letters[0].WorkflowSlug)
	assert.Equal(t, seen.failed[0].ExecutionID, letters[0].ExecutionID)
	assert.Equal(t, "corr-1", letters[0].CorrelationID)
	assert.Equal(t, "contact", letters[0].SourceIdentifier)
	assert.Equal(t, map[string]any{"name": "ada"}, letters[0].Payload)
}

func TestDispatcher_TriggerWithoutMatches(t *testing.T) {
	env := newTestEnv(t)
	bus, _ := newDispatcherBus(t)

	paused := graph("paused", []*models.Node{node("form", "form_trigger", nil)})
	paused.Status = models.WorkflowStatusPaused
	env.saveWorkflow(t, paused)

	dispatcher := NewDispatcher(slog.Default(), env.workflows, env.executor, bus, env.store.DeadLetterRepository())

	assert.Zero(t, dispatcher.Trigger(context.Background(), models.TriggerEvent{SourceType: models.SourceTypeForm}))
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	env := newTestEnv(t)
	bus, seen := newDispatcherBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, peak atomic.Int32

	env.registry.RegisterNode(&funcFactory{kind: "track", run: func(_ context.Context, _ *models.ExecutionContext, _ map[string]any) (any, error) {
		current := active.Add(1)
		defer active.Add(-1)

		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)

		return nil, nil
	}})

	env.saveWorkflow(t, graph("tracked", []*models.Node{
		node("manual", "manual_trigger", nil),
		node("work", "track", nil),
	}, edge("manual", "work")))

	dispatcher := NewDispatcher(slog.Default(), env.workflows, env.executor, bus,
		env.store.DeadLetterRepository(), WithConcurrency(2))
	require.NoError(t, dispatcher.Start(ctx))

	const runs = 8

	for range runs {
		require.Equal(t, 1, dispatcher.Trigger(ctx, models.TriggerEvent{SourceType: models.SourceTypeManual}))
	}

	require.Eventually(t, func() bool { return seen.count() == runs }, 5*time.Second, 10*time.Millisecond)
	dispatcher.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestDispatcher_PublishFailureIsDeadLettered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.saveWorkflow(t, graph("webhooks", []*models.Node{
		node("hook", "webhook_trigger", map[string]any{"sourceIdentifier": "github"}),
		node("handle", "echo", nil),
	}, edge("hook", "handle")))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "wf-webhooks", mock.AnythingOfType("events.WorkflowTriggered")).
		Return(errors.New("broker unavailable"))

	dispatcher := NewDispatcher(slog.Default(), env.workflows, env.executor, bus, env.store.DeadLetterRepository())

	published := dispatcher.Trigger(ctx, models.TriggerEvent{
		SourceType:       models.SourceTypeWebhook,
		SourceIdentifier: "github",
		Payload:          map[string]any{"action": "opened"},
	})
	assert.Zero(t, published)
	bus.AssertExpectations(t)

	letters, err := env.store.DeadLetterRepository().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "webhooks", letters[0].WorkflowSlug)
	assert.Empty(t, letters[0].ExecutionID)
	assert.Contains(t, letters[0].Error, "broker unavailable")
}

func TestDispatcher_StartFailsWhenSubscribeFails(t *testing.T) {
	env := newTestEnv(t)

	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.WorkflowTriggeredEvent, mock.Anything).Return(nil)
	bus.On("Subscribe", mock.Anything).Return(errors.New("no route to broker"))

	dispatcher := NewDispatcher(slog.Default(), env.workflows, env.executor, bus, env.store.DeadLetterRepository())

	err := dispatcher.Start(context.Background())
	require.ErrorContains(t, err, "no route to broker")
	bus.AssertExpectations(t)
}
