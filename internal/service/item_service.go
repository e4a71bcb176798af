package service

import (
	"context"
	"errors"
	"strings"

	"barter-service/internal/apperr"
	"barter-service/internal/models"
	"barter-service/internal/sequence"
	"barter-service/internal/store"
	"barter-service/internal/util"

	"go.uber.org/zap"
)

// ItemService handles item listings
type ItemService struct {
	store     *store.Store
	allocator sequence.Allocator
	logger    *zap.Logger
}

// NewItemService creates a new item service
func NewItemService(store *store.Store, allocator sequence.Allocator) *ItemService {
	return &ItemService{
		store:     store,
		allocator: allocator,
		logger:    util.GetLogger(),
	}
}

// CreateItemRequest represents a request to list an item
type CreateItemRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Image       string `json:"image" binding:"required"`
}

// UpdateItemRequest represents an owner's edit of an item
type UpdateItemRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// CreateItem lists a new available item owned by principal
func (s *ItemService) CreateItem(ctx context.Context, req *CreateItemRequest, principal models.Principal) (*models.Item, error) {
	ctx, span := util.StartSpan(ctx, "ItemService.CreateItem")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Invalid("item name is required")
	}

	id, err := s.allocator.Allocate(ctx, models.CounterItems)
	if err != nil {
		return nil, err
	}

	item := &models.Item{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
		OwnerID:     principal.ID,
		OwnerEmail:  principal.Email,
		Status:      models.ItemStatusAvailable,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	util.ItemsCreatedTotal.Inc()
	s.logger.Info("Item created", zap.Int64("item_id", item.ID), zap.String("email", principal.Email))
	return item, nil
}

// GetItem retrieves an item by ID
func (s *ItemService) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	return s.store.GetItemByID(ctx, id)
}

// ListAvailable lists items open for trade that principal does not own
func (s *ItemService) ListAvailable(ctx context.Context, principal *models.Principal, category string) ([]models.Item, error) {
	var exclude int64
	if principal != nil {
		exclude = principal.ID
	}
	if strings.EqualFold(category, "all") {
		category = ""
	}
	return s.store.ListAvailableItems(ctx, exclude, category)
}

// ListOwn lists principal's available items
func (s *ItemService) ListOwn(ctx context.Context, principal models.Principal) ([]models.Item, error) {
	return s.store.ListItemsByOwner(ctx, principal.ID, models.ItemStatusAvailable)
}

// UpdateItem edits the descriptive fields of principal's available item.
// Status is owned by the trade lifecycle and cannot be changed here.
func (s *ItemService) UpdateItem(ctx context.Context, id int64, req *UpdateItemRequest, principal models.Principal) (*models.Item, error) {
	err := s.store.UpdateItemDetails(ctx, id, principal.Email, strings.TrimSpace(req.Name), req.Description, req.Category)
	if errors.Is(err, store.ErrNotMatched) {
		item, getErr := s.store.GetItemByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if item.OwnerEmail != principal.Email {
			return nil, apperr.Forbidden("you do not own item %d", id)
		}
		return nil, apperr.Conflict("item %d is %s and cannot be edited", id, item.Status)
	}
	if err != nil {
		return nil, err
	}
	return s.store.GetItemByID(ctx, id)
}
