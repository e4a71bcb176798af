package service

import (
	"context"

	"barter-service/internal/models"
	"barter-service/internal/store"
	"barter-service/internal/util"

	"go.uber.org/zap"
)

// TradeHistory keeps the audit trail of trade lifecycle events
type TradeHistory struct {
	store  *store.Store
	logger *zap.Logger
}

// NewTradeHistory creates a new trade history service
func NewTradeHistory(store *store.Store) *TradeHistory {
	return &TradeHistory{
		store:  store,
		logger: util.GetLogger(),
	}
}

// HandleTradeEvent appends event to the audit trail exactly once per event id
func (h *TradeHistory) HandleTradeEvent(ctx context.Context, event *models.TradeLifecycleEvent) error {
	ctx, span := util.StartSpan(ctx, "TradeHistory.HandleTradeEvent")
	defer span.End()

	recorded := false
	err := h.store.WithTx(ctx, func(tx *store.Tx) error {
		fresh, err := tx.MarkEventProcessed(ctx, event.EventID, event.EventType)
		if err != nil || !fresh {
			return err
		}
		recorded = true
		return tx.InsertTradeEvent(ctx, &models.TradeEvent{
			EventID:    event.EventID,
			TradeID:    event.TradeID,
			EventType:  event.EventType,
			ActorEmail: event.ActorEmail,
			Status:     event.Status,
			OccurredAt: event.Timestamp,
		})
	})
	if err != nil {
		return err
	}

	if !recorded {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	util.TradeEventsRecordedTotal.WithLabelValues(event.EventType).Inc()
	return nil
}

// ListEvents returns a trade's audit trail, oldest first
func (h *TradeHistory) ListEvents(ctx context.Context, tradeID int64) ([]models.TradeEvent, error) {
	if _, err := h.store.GetTradeByID(ctx, tradeID); err != nil {
		return nil, err
	}
	return h.store.ListTradeEvents(ctx, tradeID)
}
