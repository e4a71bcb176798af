package worker

import (
	"context"

	"barter-service/internal/broker"
	"barter-service/internal/models"
	"barter-service/internal/util"

	"go.uber.org/zap"
)

// EventRecorder persists a consumed trade event
type EventRecorder interface {
	HandleTradeEvent(ctx context.Context, event *models.TradeLifecycleEvent) error
}

// TradeEventWorker consumes trade lifecycle events into the audit trail
type TradeEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewTradeEventWorker creates a new trade event worker
func NewTradeEventWorker(consumer *broker.Consumer, recorder EventRecorder) *TradeEventWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnTradeEvent(recorder.HandleTradeEvent)

	return &TradeEventWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *TradeEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting trade event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *TradeEventWorker) Stop() error {
	w.logger.Info("Stopping trade event worker")
	return w.consumer.Close()
}
