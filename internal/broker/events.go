package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"barter-service/internal/models"
	"barter-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes trade lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishTradeEvent publishes a lifecycle event keyed by its trade
func (ep *EventPublisher) PublishTradeEvent(ctx context.Context, event *models.TradeLifecycleEvent) error {
	key := fmt.Sprintf("trade-%d", event.TradeID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// EventHandler decodes incoming messages and routes trade events
type EventHandler struct {
	onTradeEvent func(context.Context, *models.TradeLifecycleEvent) error
	logger       *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnTradeEvent registers a handler for every trade lifecycle event type
func (eh *EventHandler) OnTradeEvent(handler func(context.Context, *models.TradeLifecycleEvent) error) {
	eh.onTradeEvent = handler
}

// HandleMessage routes messages to the registered handler
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	eventType := headerValue(msg, HeaderEventType)
	if eventType == "" {
		var base models.BaseEvent
		if err := json.Unmarshal(msg.Value, &base); err != nil {
			return fmt.Errorf("failed to unmarshal base event: %w", err)
		}
		eventType = base.EventType
	}

	switch eventType {
	case models.EventTypeTradeCreated,
		models.EventTypeTradeAccepted,
		models.EventTypeTradeConfirmed,
		models.EventTypeTradeCanceled:
		if eh.onTradeEvent == nil {
			return nil
		}
		var event models.TradeLifecycleEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
		}
		eh.logger.Debug("Handling event",
			zap.String("event_type", event.EventType),
			zap.String("event_id", event.EventID))
		return eh.onTradeEvent(ctx, &event)

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", eventType))
	}

	return nil
}
