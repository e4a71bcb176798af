package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"barter-service/internal/apperr"
	"barter-service/internal/models"
)

// tradeRow is the flattened trades table; snapshots are stored as columns, not blobs.
type tradeRow struct {
	ID                 int64     `db:"id"`
	GiverItemID        int64     `db:"giver_item_id"`
	GiverItemName      string    `db:"giver_item_name"`
	GiverOwnerID       int64     `db:"giver_owner_id"`
	GiverOwnerEmail    string    `db:"giver_owner_email"`
	GiverStatus        string    `db:"giver_status"`
	ReceiverItemID     int64     `db:"receiver_item_id"`
	ReceiverItemName   string    `db:"receiver_item_name"`
	ReceiverOwnerID    int64     `db:"receiver_owner_id"`
	ReceiverOwnerEmail string    `db:"receiver_owner_email"`
	ReceiverStatus     string    `db:"receiver_status"`
	Status             string    `db:"status"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r *tradeRow) toModel() *models.Trade {
	return &models.Trade{
		ID: r.ID,
		Giver: models.PartySnapshot{
			ItemID:     r.GiverItemID,
			ItemName:   r.GiverItemName,
			OwnerID:    r.GiverOwnerID,
			OwnerEmail: r.GiverOwnerEmail,
			Status:     r.GiverStatus,
		},
		Receiver: models.PartySnapshot{
			ItemID:     r.ReceiverItemID,
			ItemName:   r.ReceiverItemName,
			OwnerID:    r.ReceiverOwnerID,
			OwnerEmail: r.ReceiverOwnerEmail,
			Status:     r.ReceiverStatus,
		},
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const tradeColumns = `id, giver_item_id, giver_item_name, giver_owner_id, giver_owner_email, giver_status,
	receiver_item_id, receiver_item_name, receiver_owner_id, receiver_owner_email, receiver_status,
	status, created_at, updated_at`

// partyStatusColumn maps a party to its column; never interpolate caller input.
var partyStatusColumn = map[string]string{
	models.PartyGiver:    "giver_status",
	models.PartyReceiver: "receiver_status",
}

// CreateTrade inserts a trade whose id was already allocated
func (q queries) CreateTrade(ctx context.Context, trade *models.Trade) error {
	_, err := q.exec(ctx, `
		INSERT INTO trades (id,
			giver_item_id, giver_item_name, giver_owner_id, giver_owner_email, giver_status,
			receiver_item_id, receiver_item_name, receiver_owner_id, receiver_owner_email, receiver_status,
			status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID,
		trade.Giver.ItemID, trade.Giver.ItemName, trade.Giver.OwnerID, trade.Giver.OwnerEmail, trade.Giver.Status,
		trade.Receiver.ItemID, trade.Receiver.ItemName, trade.Receiver.OwnerID, trade.Receiver.OwnerEmail, trade.Receiver.Status,
		trade.Status)
	if err != nil {
		return apperr.Unavailable("create trade", err)
	}

	created, err := q.GetTradeByID(ctx, trade.ID)
	if err != nil {
		return err
	}
	*trade = *created
	return nil
}

// GetTradeByID retrieves a trade by ID
func (q queries) GetTradeByID(ctx context.Context, id int64) (*models.Trade, error) {
	var row tradeRow
	err := q.get(ctx, &row, "SELECT "+tradeColumns+" FROM trades WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("trade not found: %d", id)
	}
	if err != nil {
		return nil, apperr.Unavailable("get trade", err)
	}
	return row.toModel(), nil
}

// ListTradesByEmail retrieves trades where email owns either side, newest first
func (q queries) ListTradesByEmail(ctx context.Context, email string) ([]models.Trade, error) {
	var rows []tradeRow
	err := q.selectAll(ctx, &rows,
		"SELECT "+tradeColumns+" FROM trades WHERE giver_owner_email = ? OR receiver_owner_email = ? ORDER BY id DESC",
		email, email)
	if err != nil {
		return nil, apperr.Unavailable("list trades", err)
	}

	trades := make([]models.Trade, 0, len(rows))
	for i := range rows {
		trades = append(trades, *rows[i].toModel())
	}
	return trades, nil
}

// SetPartyStatus writes one party's sub-status while the trade is still open.
// Returns ErrNotMatched if the trade is missing or already closed.
func (q queries) SetPartyStatus(ctx context.Context, id int64, party, status string) (*models.Trade, error) {
	column, ok := partyStatusColumn[party]
	if !ok {
		return nil, fmt.Errorf("unknown trade party: %q", party)
	}

	res, err := q.exec(ctx,
		"UPDATE trades SET "+column+" = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?",
		status, id, models.TradeStatusWaiting)
	if err != nil {
		return nil, apperr.Unavailable("set party status", err)
	}
	if err := matchedOne(res); err != nil {
		return nil, err
	}
	return q.GetTradeByID(ctx, id)
}

// ConfirmTrade flips an open trade to confirmed only when both parties have accepted.
// Exactly one caller observes true for a given trade.
func (q queries) ConfirmTrade(ctx context.Context, id int64) (bool, error) {
	res, err := q.exec(ctx, `
		UPDATE trades SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND giver_status = ? AND receiver_status = ?`,
		models.TradeStatusConfirmed, id, models.TradeStatusWaiting,
		models.PartyStatusAccepted, models.PartyStatusAccepted)
	if err != nil {
		return false, apperr.Unavailable("confirm trade", err)
	}
	if err := matchedOne(res); err != nil {
		if err == ErrNotMatched {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CancelTrade closes an open trade and marks both parties declined.
// Returns ErrNotMatched if the trade is missing or already closed.
func (q queries) CancelTrade(ctx context.Context, id int64) (*models.Trade, error) {
	res, err := q.exec(ctx, `
		UPDATE trades SET status = ?, giver_status = ?, receiver_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		models.TradeStatusCanceled, models.PartyStatusDeclined, models.PartyStatusDeclined,
		id, models.TradeStatusWaiting)
	if err != nil {
		return nil, apperr.Unavailable("cancel trade", err)
	}
	if err := matchedOne(res); err != nil {
		return nil, err
	}
	return q.GetTradeByID(ctx, id)
}
