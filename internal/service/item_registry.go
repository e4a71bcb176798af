package service

import (
	"context"
	"errors"

	"barter-service/internal/apperr"
	"barter-service/internal/models"
	"barter-service/internal/store"
)

// ItemStatusStore is the part of the store the registry needs.
// Both *store.Store and *store.Tx satisfy it.
type ItemStatusStore interface {
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
	TransitionItemStatus(ctx context.Context, id int64, from, to string) (*models.Item, error)
}

// ItemRegistry applies the trade-driven status transitions of an item.
// Each transition is one conditional update on status.
type ItemRegistry struct {
	items ItemStatusStore
}

// NewItemRegistry binds a registry to a store or transaction
func NewItemRegistry(items ItemStatusStore) *ItemRegistry {
	return &ItemRegistry{items: items}
}

// GetByIDWithOwner reads an item for validation
func (r *ItemRegistry) GetByIDWithOwner(ctx context.Context, itemID int64) (*models.Item, error) {
	return r.items.GetItemByID(ctx, itemID)
}

// LockForTrade moves an available item to trading.
// Fails with Conflict if the item is in any other status.
func (r *ItemRegistry) LockForTrade(ctx context.Context, itemID int64) (*models.Item, error) {
	item, err := r.items.TransitionItemStatus(ctx, itemID, models.ItemStatusAvailable, models.ItemStatusTrading)
	if !errors.Is(err, store.ErrNotMatched) {
		return item, err
	}

	current, err := r.items.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return nil, apperr.Conflict("item %d is %s, not available", itemID, current.Status)
}

// FinalizeTraded moves a trading item to deleted
func (r *ItemRegistry) FinalizeTraded(ctx context.Context, itemID int64) (*models.Item, error) {
	return r.transitionFromTrading(ctx, itemID, models.ItemStatusDeleted)
}

// ReleaseFromTrade moves a trading item back to available
func (r *ItemRegistry) ReleaseFromTrade(ctx context.Context, itemID int64) (*models.Item, error) {
	return r.transitionFromTrading(ctx, itemID, models.ItemStatusAvailable)
}

func (r *ItemRegistry) transitionFromTrading(ctx context.Context, itemID int64, to string) (*models.Item, error) {
	item, err := r.items.TransitionItemStatus(ctx, itemID, models.ItemStatusTrading, to)
	if errors.Is(err, store.ErrNotMatched) {
		return nil, apperr.NotFound("item %d is not locked for trade", itemID)
	}
	return item, err
}

// lockOrder returns the two ids lowest first, so concurrent trades over the same items
// always acquire them in the same order.
func lockOrder(a, b int64) [2]int64 {
	if b < a {
		return [2]int64{b, a}
	}
	return [2]int64{a, b}
}
