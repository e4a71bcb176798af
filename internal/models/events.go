package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeTradeCreated   = "TRADE_CREATED"
	EventTypeTradeAccepted  = "TRADE_ACCEPTED"
	EventTypeTradeConfirmed = "TRADE_CONFIRMED"
	EventTypeTradeCanceled  = "TRADE_CANCELED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeLifecycleEvent is published on every trade state change
type TradeLifecycleEvent struct {
	BaseEvent
	TradeID        int64  `json:"trade_id"`
	ActorEmail     string `json:"actor_email,omitempty"`
	Status         string `json:"status"`
	GiverItemID    int64  `json:"giver_item_id"`
	ReceiverItemID int64  `json:"receiver_item_id"`
}

// NewTradeEvent builds an event of the given type for the trade's current state
func NewTradeEvent(eventType string, trade *Trade, actorEmail string) *TradeLifecycleEvent {
	return &TradeLifecycleEvent{
		BaseEvent: BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		TradeID:        trade.ID,
		ActorEmail:     actorEmail,
		Status:         trade.Status,
		GiverItemID:    trade.Giver.ItemID,
		ReceiverItemID: trade.Receiver.ItemID,
	}
}
