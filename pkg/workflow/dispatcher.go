package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/flowforge/pkg/eventbus"
	"github.com/dukex/flowforge/pkg/events"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// DefaultDispatchConcurrency bounds concurrently running dispatched executions.
const DefaultDispatchConcurrency = 8

// Dispatcher turns trigger events into asynchronous runs. Trigger publishes
// one WorkflowTriggered event per matched workflow; the consumer side runs
// them with bounded concurrency. Failures end up in the dead-letter store and
// are never reported back to the event source.
type Dispatcher struct {
	logger      *slog.Logger
	workflows   *Repository
	matcher     *TriggerMatcher
	executor    *Executor
	bus         eventbus.EventBus
	deadLetters persistence.DeadLetterRepository
	workerID    string
	semaphore   chan struct{}
	wg          sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithConcurrency(concurrency int) DispatcherOption {
	return func(d *Dispatcher) {
		if concurrency > 0 {
			d.semaphore = make(chan struct{}, concurrency)
		}
	}
}

func WithWorkerID(workerID string) DispatcherOption {
	return func(d *Dispatcher) {
		d.workerID = workerID
	}
}

func NewDispatcher(
	logger *slog.Logger,
	workflows *Repository,
	executor *Executor,
	bus eventbus.EventBus,
	deadLetters persistence.DeadLetterRepository,
	opts ...DispatcherOption,
) *Dispatcher {
	dispatcher := &Dispatcher{
		logger:      logger.With("module", "dispatcher"),
		workflows:   workflows,
		matcher:     NewTriggerMatcher(logger),
		executor:    executor,
		bus:         bus,
		deadLetters: deadLetters,
		semaphore:   make(chan struct{}, DefaultDispatchConcurrency),
	}

	for _, opt := range opts {
		opt(dispatcher)
	}

	return dispatcher
}

// Trigger publishes a run request for every active workflow accepting event
// and returns how many were published. It never waits for the runs.
func (d *Dispatcher) Trigger(ctx context.Context, event models.TriggerEvent) int {
	logger := d.logger.With(
		"source_type", event.SourceType,
		"source_identifier", event.SourceIdentifier,
		"correlation_id", event.CorrelationID,
	)

	workflows, err := d.workflows.GetActive(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load active workflows", "error", err)

		return 0
	}

	published := 0

	for _, match := range d.matcher.MatchWorkflows(event, workflows) {
		triggered := events.WorkflowTriggered{
			BaseEvent:        events.NewBaseEvent(events.WorkflowTriggeredEvent, match.Workflow.ID, match.Workflow.Slug),
			TriggerNodeID:    match.TriggerNode.ID,
			Trigger:          TriggerSourceFor(event.SourceType),
			SourceType:       event.SourceType,
			SourceIdentifier: event.SourceIdentifier,
			CorrelationID:    event.CorrelationID,
			Payload:          event.Payload,
		}
		triggered.WorkerID = d.workerID

		if err := d.bus.Publish(ctx, match.Workflow.ID, triggered); err != nil {
			logger.ErrorContext(ctx, "Failed to publish workflow trigger",
				"workflow_slug", match.Workflow.Slug, "error", err)
			d.deadLetter(ctx, &triggered, "", fmt.Sprintf("failed to dispatch: %v", err))

			continue
		}

		published++
	}

	logger.InfoContext(ctx, "Trigger event dispatched", "workflows", published)

	return published
}

// Start registers the consumer for WorkflowTriggered events and begins consuming.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.bus.Handle(events.WorkflowTriggeredEvent, d.handleWorkflowTriggered); err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	if err := d.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	d.logger.InfoContext(ctx, "Dispatcher started", "concurrency", cap(d.semaphore))

	return nil
}

// Wait blocks until every accepted run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// handleWorkflowTriggered blocks while the concurrency limit is reached, then
// runs the workflow in the background.
func (d *Dispatcher) handleWorkflowTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.WorkflowTriggered)
	if !ok {
		d.logger.ErrorContext(ctx, "Invalid event type for WorkflowTriggered")

		return nil
	}

	select {
	case d.semaphore <- struct{}{}:
	case <-ctx.Done():
		d.deadLetter(context.WithoutCancel(ctx), triggered, "", "dispatcher stopped before the run started")

		return ctx.Err()
	}

	d.wg.Add(1)

	go func() {
		defer func() {
			<-d.semaphore
			d.wg.Done()
		}()

		d.run(ctx, triggered)
	}()

	return nil
}

func (d *Dispatcher) run(ctx context.Context, triggered *events.WorkflowTriggered) {
	logger := d.logger.With("workflow_slug", triggered.WorkflowSlug, "event_id", triggered.ID)
	logger.InfoContext(ctx, "Processing workflow triggered event")

	result, err := d.executor.Execute(ctx, ExecuteRequest{
		WorkflowID:   triggered.WorkflowID,
		WorkflowSlug: triggered.WorkflowSlug,
		Trigger:      triggered.Trigger,
		Input:        triggered.Payload,
	})

	publishCtx := context.WithoutCancel(ctx)

	if err != nil {
		logger.ErrorContext(ctx, "Failed to execute workflow", "error", err)
		d.deadLetter(publishCtx, triggered, "", err.Error())
		d.publishFailed(publishCtx, triggered, "", string(models.ExecutionStatusFailed), err.Error())

		return
	}

	if !result.Success {
		d.deadLetter(publishCtx, triggered, result.ExecutionID, result.Error)
		d.publishFailed(publishCtx, triggered, result.ExecutionID, string(result.Status), result.Error)

		return
	}

	completed := events.WorkflowExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, triggered.WorkflowID, triggered.WorkflowSlug),
		ExecutionID:   result.ExecutionID,
		CorrelationID: triggered.CorrelationID,
		Output:        result.Output,
	}
	completed.WorkerID = d.workerID

	if stored, err := d.executor.executions.GetByID(publishCtx, result.ExecutionID); err == nil && stored != nil && stored.DurationMs != nil {
		completed.DurationMs = *stored.DurationMs
	}

	if err := d.bus.Publish(publishCtx, triggered.WorkflowID, completed); err != nil {
		logger.ErrorContext(ctx, "Failed to publish execution completed event", "error", err)
	}
}

func (d *Dispatcher) publishFailed(ctx context.Context, triggered *events.WorkflowTriggered, executionID, status, message string) {
	failed := events.WorkflowExecutionFailed{
		BaseEvent:     events.NewBaseEvent(events.WorkflowExecutionFailedEvent, triggered.WorkflowID, triggered.WorkflowSlug),
		ExecutionID:   executionID,
		CorrelationID: triggered.CorrelationID,
		Status:        status,
		Error:         message,
	}
	failed.WorkerID = d.workerID

	if err := d.bus.Publish(ctx, triggered.WorkflowID, failed); err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish execution failed event",
			"workflow_slug", triggered.WorkflowSlug, "error", err)
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, triggered *events.WorkflowTriggered, executionID, message string) {
	letter := &models.DeadLetter{
		ID:               uuid.NewString(),
		WorkflowID:       triggered.WorkflowID,
		WorkflowSlug:     triggered.WorkflowSlug,
		ExecutionID:      executionID,
		SourceType:       triggered.SourceType,
		SourceIdentifier: triggered.SourceIdentifier,
		CorrelationID:    triggered.CorrelationID,
		Payload:          triggered.Payload,
		Error:            message,
		FailedAt:         time.Now().UTC(),
	}

	if err := d.deadLetters.Save(ctx, letter); err != nil {
		d.logger.ErrorContext(ctx, "Failed to save dead letter",
			"workflow_slug", triggered.WorkflowSlug, "error", err)
	}
}
