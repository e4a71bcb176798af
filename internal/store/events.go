package store

import (
	"context"

	"barter-service/internal/apperr"
	"barter-service/internal/models"
)

// IsEventProcessed checks if an event has been processed
func (q queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := q.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)", eventID)
	if err != nil {
		return false, apperr.Unavailable("check processed event", err)
	}
	return exists, nil
}

// MarkEventProcessed marks an event as processed. Returns false if it already was.
func (q queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := q.exec(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES (?, ?) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, apperr.Unavailable("mark event processed", err)
	}
	if err := matchedOne(res); err != nil {
		if err == ErrNotMatched {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertTradeEvent appends an entry to a trade's audit trail
func (q queries) InsertTradeEvent(ctx context.Context, event *models.TradeEvent) error {
	_, err := q.exec(ctx, `
		INSERT INTO trade_events (event_id, trade_id, event_type, actor_email, status, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.TradeID, event.EventType, event.ActorEmail, event.Status, event.OccurredAt.UTC())
	if err != nil {
		return apperr.Unavailable("insert trade event", err)
	}
	return nil
}

// ListTradeEvents retrieves a trade's audit trail, oldest first
func (q queries) ListTradeEvents(ctx context.Context, tradeID int64) ([]models.TradeEvent, error) {
	events := []models.TradeEvent{}
	err := q.selectAll(ctx, &events, `
		SELECT event_id, trade_id, event_type, actor_email, status, occurred_at
		FROM trade_events WHERE trade_id = ? ORDER BY occurred_at, event_id`, tradeID)
	if err != nil {
		return nil, apperr.Unavailable("list trade events", err)
	}
	return events, nil
}
