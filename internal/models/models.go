package models

import "time"

// Counter names used with the sequence allocator
const (
	CounterItems  = "items"
	CounterTrades = "trades"
)

// Counter is one row per logical sequence name
type Counter struct {
	Name      string    `db:"name" json:"name"`
	Value     int64     `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Item represents a listing owned by a user
type Item struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	Image       string    `db:"image" json:"image,omitempty"`
	OwnerID     int64     `db:"owner_id" json:"owner_id"`
	OwnerEmail  string    `db:"owner_email" json:"user_email"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Item statuses
const (
	ItemStatusAvailable = "available"
	ItemStatusTrading   = "trading"
	ItemStatusDeleted   = "deleted"
)

// PartySnapshot is the copy of one side's item taken when the trade was created
type PartySnapshot struct {
	ItemID     int64  `json:"id"`
	ItemName   string `json:"name"`
	OwnerID    int64  `json:"owner_id"`
	OwnerEmail string `json:"user_email"`
	Status     string `json:"status"`
}

// Trade is a one-for-one exchange between two items
type Trade struct {
	ID        int64         `json:"id"`
	Giver     PartySnapshot `json:"giver"`
	Receiver  PartySnapshot `json:"receiver"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Party returns the side owned by email, or "" when email is not part of the trade.
func (t *Trade) Party(email string) string {
	switch email {
	case t.Giver.OwnerEmail:
		return PartyGiver
	case t.Receiver.OwnerEmail:
		return PartyReceiver
	}
	return ""
}

// Trade statuses
const (
	TradeStatusWaiting   = "waiting_action"
	TradeStatusConfirmed = "confirmed_trade"
	TradeStatusCanceled  = "canceled_trade"
)

// Party statuses
const (
	PartyStatusPending  = "pending"
	PartyStatusAccepted = "accepted"
	PartyStatusDeclined = "declined"
)

// Trade parties
const (
	PartyGiver    = "giver"
	PartyReceiver = "receiver"
)

// Decision is a party's answer to a trade
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// Principal is the authenticated caller
type Principal struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// TradeEvent is one entry of a trade's audit trail
type TradeEvent struct {
	EventID    string    `db:"event_id" json:"event_id"`
	TradeID    int64     `db:"trade_id" json:"trade_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	ActorEmail string    `db:"actor_email" json:"actor_email,omitempty"`
	Status     string    `db:"status" json:"status"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
