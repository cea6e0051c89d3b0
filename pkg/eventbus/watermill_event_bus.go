package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowforge/pkg/events"
	"github.com/dukex/flowforge/pkg/otelhelper"
)

var errUnknownEventType = errors.New("unknown event type")

// WatermillEventBus adapts a watermill publisher/subscriber pair. Trace
// context travels in the message metadata.
type WatermillEventBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber
	tracer     trace.Tracer

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		logger:        logger.With("module", "eventbus"),
		publisher:     pub,
		subscriber:    sub,
		tracer:        otel.Tracer("flowforge/eventbus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))

	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	eb.logger.DebugContext(ctx, "Publishing event", "key", key, "event_type", event.GetType())

	if err := eb.publisher.Publish(events.Topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}

// Subscribe starts consuming in the background until ctx is done or the
// subscriber is closed.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			eb.consume(ctx, msg)
		}
	}()

	return nil
}

// consume acks every message; handler failures are logged and recorded on the span.
func (eb *WatermillEventBus) consume(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))

	traceCtx, span := otelhelper.StartSpan(msgCtx, eb.tracer, "eventbus.consume",
		attribute.String(otelhelper.EventTypeKey, string(eventType)),
		attribute.String(otelhelper.EventIDKey, msg.UUID),
	)
	defer span.End()

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		eb.logger.DebugContext(traceCtx, "Ignoring event without handler", "event_type", eventType)

		return
	}

	event := events.New(eventType)
	if event == nil {
		otelhelper.SetError(span, errUnknownEventType)
		eb.logger.ErrorContext(traceCtx, "Unknown event type", "event_type", eventType)

		return
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		otelhelper.SetError(span, err)
		eb.logger.ErrorContext(traceCtx, "Failed to unmarshal event", "event_type", eventType, "error", err)

		return
	}

	if err := handler(traceCtx, event); err != nil {
		otelhelper.SetError(span, err)
		eb.logger.ErrorContext(traceCtx, "Failed to handle event", "event_type", eventType, "error", err)
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if events.New(eventType) == nil {
		return fmt.Errorf("%w: %s", errUnknownEventType, eventType)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	// gochannel uses one instance for both sides.
	if closer, ok := eb.subscriber.(message.Publisher); ok && closer == eb.publisher {
		return nil
	}

	return eb.subscriber.Close()
}
