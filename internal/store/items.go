package store

import (
	"context"
	"database/sql"
	"time"

	"barter-service/internal/apperr"
	"barter-service/internal/models"
)

const itemColumns = `id, name, description, category, image, owner_id, owner_email, status, created_at, updated_at`

// CreateItem inserts an item whose id was already allocated
func (q queries) CreateItem(ctx context.Context, item *models.Item) error {
	_, err := q.exec(ctx, `
		INSERT INTO items (id, name, description, category, image, owner_id, owner_email, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Description, item.Category, item.Image,
		item.OwnerID, item.OwnerEmail, item.Status)
	if err != nil {
		return apperr.Unavailable("create item", err)
	}

	created, err := q.GetItemByID(ctx, item.ID)
	if err != nil {
		return err
	}
	*item = *created
	return nil
}

// GetItemByID retrieves an item by ID
func (q queries) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	err := q.get(ctx, &item, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("item not found: %d", id)
	}
	if err != nil {
		return nil, apperr.Unavailable("get item", err)
	}
	return &item, nil
}

// ListAvailableItems lists available items not owned by excludeOwnerID, newest first.
// An empty category matches every category.
func (q queries) ListAvailableItems(ctx context.Context, excludeOwnerID int64, category string) ([]models.Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE status = ? AND owner_id <> ?"
	args := []interface{}{models.ItemStatusAvailable, excludeOwnerID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY id DESC"

	items := []models.Item{}
	if err := q.selectAll(ctx, &items, query, args...); err != nil {
		return nil, apperr.Unavailable("list available items", err)
	}
	return items, nil
}

// ListItemsByOwner lists an owner's items in the given status
func (q queries) ListItemsByOwner(ctx context.Context, ownerID int64, status string) ([]models.Item, error) {
	items := []models.Item{}
	err := q.selectAll(ctx, &items,
		"SELECT "+itemColumns+" FROM items WHERE owner_id = ? AND status = ? ORDER BY id DESC",
		ownerID, status)
	if err != nil {
		return nil, apperr.Unavailable("list owner items", err)
	}
	return items, nil
}

// UpdateItemDetails edits the descriptive fields of an available item owned by ownerEmail.
// Returns ErrNotMatched when no such item exists.
func (q queries) UpdateItemDetails(ctx context.Context, id int64, ownerEmail, name, description, category string) error {
	res, err := q.exec(ctx, `
		UPDATE items SET name = ?, description = ?, category = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_email = ? AND status = ?`,
		name, description, category, id, ownerEmail, models.ItemStatusAvailable)
	if err != nil {
		return apperr.Unavailable("update item", err)
	}
	return matchedOne(res)
}

// TransitionItemStatus moves an item from one status to another only if it is currently
// in from. Returns ErrNotMatched when the item is missing or in another status.
func (q queries) TransitionItemStatus(ctx context.Context, id int64, from, to string) (*models.Item, error) {
	res, err := q.exec(ctx,
		"UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?",
		to, id, from)
	if err != nil {
		return nil, apperr.Unavailable("transition item status", err)
	}
	if err := matchedOne(res); err != nil {
		return nil, err
	}
	return q.GetItemByID(ctx, id)
}

// ListOrphanedTradingItems finds items locked before cutoff that no open trade references.
func (q queries) ListOrphanedTradingItems(ctx context.Context, cutoff time.Time) ([]models.Item, error) {
	items := []models.Item{}
	err := q.selectAll(ctx, &items, `
		SELECT `+itemColumns+` FROM items i
		WHERE i.status = ? AND i.updated_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM trades t
			WHERE t.status = ? AND (t.giver_item_id = i.id OR t.receiver_item_id = i.id)
		)
		ORDER BY i.id`,
		models.ItemStatusTrading, cutoff.UTC(), models.TradeStatusWaiting)
	if err != nil {
		return nil, apperr.Unavailable("list orphaned items", err)
	}
	return items, nil
}

// ReleaseOrphanedItem returns a trading item to available in one statement, provided no
// open trade references it. Returns ErrNotMatched otherwise.
func (q queries) ReleaseOrphanedItem(ctx context.Context, id int64) error {
	res, err := q.exec(ctx, `
		UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
		AND NOT EXISTS (
			SELECT 1 FROM trades t
			WHERE t.status = ? AND (t.giver_item_id = items.id OR t.receiver_item_id = items.id)
		)`,
		models.ItemStatusAvailable, id, models.ItemStatusTrading, models.TradeStatusWaiting)
	if err != nil {
		return apperr.Unavailable("release orphaned item", err)
	}
	return matchedOne(res)
}

func matchedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Unavailable("rows affected", err)
	}
	if n == 0 {
		return ErrNotMatched
	}
	return nil
}
