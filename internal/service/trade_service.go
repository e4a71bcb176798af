package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barter-service/internal/apperr"
	"barter-service/internal/models"
	"barter-service/internal/redisclient"
	"barter-service/internal/sequence"
	"barter-service/internal/store"
	"barter-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TradeEventPublisher publishes lifecycle events after they are committed
type TradeEventPublisher interface {
	PublishTradeEvent(ctx context.Context, event *models.TradeLifecycleEvent) error
}

// IdempotencyStore remembers which trade a client-supplied key produced
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	CompleteIdempotencyKey(ctx context.Context, key string, resourceID int64, ttl time.Duration) error
	AbandonIdempotencyKey(ctx context.Context, key string) error
	LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error)
}

// TradeEngine drives trade creation and the two-party accept/decline protocol.
// It holds no mutable state; all coordination goes through conditional writes in the store.
type TradeEngine struct {
	store          *store.Store
	allocator      sequence.Allocator
	eventPublisher TradeEventPublisher
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

const defaultIdempotencyTTL = 24 * time.Hour

// NewTradeEngine creates a new trade engine. eventPublisher and idempotency may be nil.
// A non-positive idempotencyTTL falls back to the default.
func NewTradeEngine(
	store *store.Store,
	allocator sequence.Allocator,
	eventPublisher TradeEventPublisher,
	idempotency IdempotencyStore,
	idempotencyTTL time.Duration,
) *TradeEngine {
	if idempotencyTTL <= 0 {
		idempotencyTTL = defaultIdempotencyTTL
	}
	return &TradeEngine{
		store:          store,
		allocator:      allocator,
		eventPublisher: eventPublisher,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CreateTradeRequest represents a request to create a trade
type CreateTradeRequest struct {
	GiverID    int64 `json:"giver_id" binding:"required,min=1"`
	ReceiverID int64 `json:"receiver_id" binding:"required,min=1"`
}

// CreateTrade locks both items and records a new trade offered by principal
func (e *TradeEngine) CreateTrade(ctx context.Context, req *CreateTradeRequest, principal models.Principal) (trade *models.Trade, err error) {
	ctx, span := util.StartSpan(ctx, "TradeEngine.CreateTrade",
		attribute.Int64("giver_item_id", req.GiverID),
		attribute.Int64("receiver_item_id", req.ReceiverID))
	defer func() { util.EndSpan(span, err) }()
	defer e.observe("create", time.Now(), &err)

	registry := NewItemRegistry(e.store)

	giver, err := registry.GetByIDWithOwner(ctx, req.GiverID)
	if err != nil {
		return nil, err
	}
	receiver, err := registry.GetByIDWithOwner(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	if giver.OwnerEmail != principal.Email {
		return nil, apperr.Forbidden("you do not own item %d", giver.ID)
	}
	if receiver.OwnerEmail == principal.Email {
		return nil, apperr.SelfTrade("you cannot trade with your own item")
	}
	for _, item := range []*models.Item{giver, receiver} {
		if item.Status != models.ItemStatusAvailable {
			return nil, apperr.Conflict("item %d is %s, not available", item.ID, item.Status)
		}
	}

	tradeID, err := e.allocator.Allocate(ctx, models.CounterTrades)
	if err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		items := NewItemRegistry(tx)
		locked := make(map[int64]*models.Item, 2)
		for _, id := range lockOrder(giver.ID, receiver.ID) {
			item, err := items.LockForTrade(ctx, id)
			if err != nil {
				// Rolling back the transaction releases any lock taken so far.
				if errors.Is(err, apperr.ErrConflict) {
					util.ItemLockConflictsTotal.Inc()
				}
				return err
			}
			locked[id] = item
		}

		trade = &models.Trade{
			ID:       tradeID,
			Giver:    snapshot(locked[giver.ID]),
			Receiver: snapshot(locked[receiver.ID]),
			Status:   models.TradeStatusWaiting,
		}
		return tx.CreateTrade(ctx, trade)
	})
	if err != nil {
		return nil, err
	}

	util.TradesCreatedTotal.Inc()
	util.LoggerFromContext(ctx).Info("Trade created",
		zap.Int64("trade_id", trade.ID),
		zap.Int64("giver_item_id", trade.Giver.ItemID),
		zap.Int64("receiver_item_id", trade.Receiver.ItemID),
		zap.String("email", principal.Email))

	e.publish(ctx, models.EventTypeTradeCreated, trade, principal.Email)
	return trade, nil
}

// CreateTradeIdempotent is CreateTrade keyed by a client-supplied idempotency key.
// A repeated key returns the trade created the first time with replayed set.
func (e *TradeEngine) CreateTradeIdempotent(ctx context.Context, key string, req *CreateTradeRequest, principal models.Principal) (trade *models.Trade, replayed bool, err error) {
	if key == "" || e.idempotency == nil {
		trade, err = e.CreateTrade(ctx, req, principal)
		return trade, false, err
	}

	scoped := fmt.Sprintf("%s:%s", principal.Email, key)

	claimed, err := e.idempotency.ClaimIdempotencyKey(ctx, scoped, e.idempotencyTTL)
	if err != nil {
		return nil, false, apperr.Unavailable("claim idempotency key", err)
	}
	if !claimed {
		tradeID, found, err := e.idempotency.LookupIdempotencyKey(ctx, scoped)
		if errors.Is(err, redisclient.ErrRequestInFlight) {
			return nil, false, apperr.Conflict("a request with this idempotency key is in progress")
		}
		if err != nil {
			return nil, false, apperr.Unavailable("lookup idempotency key", err)
		}
		if found {
			e.logger.Info("Duplicate trade request detected",
				zap.String("idempotency_key", key),
				zap.Int64("trade_id", tradeID))
			trade, err = e.ShowTrade(ctx, tradeID)
			return trade, true, err
		}
		// The key expired between claim and lookup; treat it as fresh.
	}

	trade, err = e.CreateTrade(ctx, req, principal)
	if err != nil {
		if abandonErr := e.idempotency.AbandonIdempotencyKey(ctx, scoped); abandonErr != nil {
			e.logger.Warn("Failed to abandon idempotency key",
				zap.String("idempotency_key", key),
				zap.Error(abandonErr))
		}
		return nil, false, err
	}

	if err := e.idempotency.CompleteIdempotencyKey(ctx, scoped, trade.ID, e.idempotencyTTL); err != nil {
		e.logger.Warn("Failed to record idempotency key",
			zap.String("idempotency_key", key),
			zap.Int64("trade_id", trade.ID),
			zap.Error(err))
	}
	return trade, false, nil
}

// AcceptTrade records principal's acceptance
func (e *TradeEngine) AcceptTrade(ctx context.Context, tradeID int64, principal models.Principal) (*models.Trade, error) {
	return e.RespondToTrade(ctx, tradeID, principal, models.DecisionAccept)
}

// DeclineTrade cancels the trade on principal's behalf
func (e *TradeEngine) DeclineTrade(ctx context.Context, tradeID int64, principal models.Principal) (*models.Trade, error) {
	return e.RespondToTrade(ctx, tradeID, principal, models.DecisionDecline)
}

// RespondToTrade applies principal's decision to an open trade
func (e *TradeEngine) RespondToTrade(ctx context.Context, tradeID int64, principal models.Principal, decision models.Decision) (trade *models.Trade, err error) {
	ctx, span := util.StartSpan(ctx, "TradeEngine.RespondToTrade",
		attribute.Int64("trade_id", tradeID),
		attribute.String("decision", string(decision)))
	defer func() { util.EndSpan(span, err) }()
	defer e.observe(string(decision), time.Now(), &err)

	if decision != models.DecisionAccept && decision != models.DecisionDecline {
		return nil, apperr.Invalid("unknown decision %q", decision)
	}

	var confirmed, changed bool
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := tx.GetTradeByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if current.Status != models.TradeStatusWaiting {
			return apperr.TradeClosed("trade %d has ended", tradeID)
		}
		party := current.Party(principal.Email)
		if party == "" {
			return apperr.Forbidden("you are not involved in trade %d", tradeID)
		}

		if decision == models.DecisionDecline {
			trade, err = e.decline(ctx, tx, current)
			changed = err == nil
			return err
		}
		trade, changed, confirmed, err = e.accept(ctx, tx, current, party)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := util.LoggerFromContext(ctx).With(
		zap.Int64("trade_id", tradeID),
		zap.String("email", principal.Email))

	switch {
	case decision == models.DecisionDecline:
		util.TradesCanceledTotal.Inc()
		log.Info("Trade declined and items released")
		e.publish(ctx, models.EventTypeTradeCanceled, trade, principal.Email)
	case changed:
		util.TradeAcceptsTotal.Inc()
		log.Info("Trade accepted", zap.Bool("confirmed", confirmed))
		e.publish(ctx, models.EventTypeTradeAccepted, trade, principal.Email)
		if confirmed {
			util.TradesConfirmedTotal.Inc()
			e.publish(ctx, models.EventTypeTradeConfirmed, trade, principal.Email)
		}
	default:
		log.Debug("Repeated accept ignored")
	}

	return trade, nil
}

// accept sets party's sub-status and, if the counterpart already accepted, confirms the
// trade and finalizes both items. Only the caller whose conditional update flips the trade
// out of waiting_action finalizes.
func (e *TradeEngine) accept(ctx context.Context, tx *store.Tx, current *models.Trade, party string) (trade *models.Trade, changed, confirmed bool, err error) {
	mine, theirs := current.Giver, current.Receiver
	if party == models.PartyReceiver {
		mine, theirs = theirs, mine
	}
	if mine.Status == models.PartyStatusAccepted {
		return current, false, false, nil
	}

	trade, err = tx.SetPartyStatus(ctx, current.ID, party, models.PartyStatusAccepted)
	if errors.Is(err, store.ErrNotMatched) {
		return nil, false, false, apperr.TradeClosed("trade %d has ended", current.ID)
	}
	if err != nil {
		return nil, false, false, err
	}

	counterpart := trade.Receiver
	if party == models.PartyReceiver {
		counterpart = trade.Giver
	}
	if counterpart.Status != models.PartyStatusAccepted {
		return trade, true, false, nil
	}

	confirmed, err = tx.ConfirmTrade(ctx, current.ID)
	if err != nil || !confirmed {
		return trade, true, false, err
	}

	items := NewItemRegistry(tx)
	for _, itemID := range lockOrder(trade.Giver.ItemID, trade.Receiver.ItemID) {
		if _, err := items.FinalizeTraded(ctx, itemID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, false, false, apperr.Conflict("item %d is no longer locked for trade %d", itemID, current.ID)
			}
			return nil, false, false, err
		}
	}

	trade.Status = models.TradeStatusConfirmed
	return trade, true, true, nil
}

// decline cancels the trade and releases both items. An item that is no longer trading is
// treated as already resolved.
func (e *TradeEngine) decline(ctx context.Context, tx *store.Tx, current *models.Trade) (*models.Trade, error) {
	trade, err := tx.CancelTrade(ctx, current.ID)
	if errors.Is(err, store.ErrNotMatched) {
		return nil, apperr.TradeClosed("trade %d has ended", current.ID)
	}
	if err != nil {
		return nil, err
	}

	items := NewItemRegistry(tx)
	for _, itemID := range lockOrder(trade.Giver.ItemID, trade.Receiver.ItemID) {
		if _, err := items.ReleaseFromTrade(ctx, itemID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				e.logger.Warn("Item already resolved while declining trade",
					zap.Int64("trade_id", trade.ID),
					zap.Int64("item_id", itemID))
				continue
			}
			return nil, err
		}
	}
	return trade, nil
}

// ShowTrade retrieves a trade by ID
func (e *TradeEngine) ShowTrade(ctx context.Context, tradeID int64) (*models.Trade, error) {
	ctx, span := util.StartSpan(ctx, "TradeEngine.ShowTrade", attribute.Int64("trade_id", tradeID))
	defer span.End()

	return e.store.GetTradeByID(ctx, tradeID)
}

// ListTrades retrieves the trades principal takes part in
func (e *TradeEngine) ListTrades(ctx context.Context, principal models.Principal) ([]models.Trade, error) {
	return e.store.ListTradesByEmail(ctx, principal.Email)
}

func (e *TradeEngine) publish(ctx context.Context, eventType string, trade *models.Trade, actor string) {
	if e.eventPublisher == nil {
		return
	}
	if err := e.eventPublisher.PublishTradeEvent(ctx, models.NewTradeEvent(eventType, trade, actor)); err != nil {
		e.logger.Error("Failed to publish trade event",
			zap.String("event_type", eventType),
			zap.Int64("trade_id", trade.ID),
			zap.Error(err))
	}
}

func (e *TradeEngine) observe(operation string, start time.Time, errp *error) {
	util.TradeOperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if *errp != nil {
		reason := string(apperr.KindOf(*errp))
		if reason == "" {
			reason = "internal"
		}
		util.TradeFailuresTotal.WithLabelValues(operation, reason).Inc()
	}
}

// snapshot copies the identifying fields of a freshly locked item
func snapshot(item *models.Item) models.PartySnapshot {
	return models.PartySnapshot{
		ItemID:     item.ID,
		ItemName:   item.Name,
		OwnerID:    item.OwnerID,
		OwnerEmail: item.OwnerEmail,
		Status:     models.PartyStatusPending,
	}
}
