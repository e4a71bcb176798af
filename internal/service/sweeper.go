package service

import (
	"context"
	"errors"
	"time"

	"barter-service/internal/store"
	"barter-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sweeperLockKey       = "orphan-sweeper"
	defaultSweepInterval = 5 * time.Minute
)

// Locker elects a single sweeper across replicas
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// Sweeper releases items stuck in trading with no open trade referencing them.
// The transactional create path never leaves such items; they only come from
// writes made outside it.
type Sweeper struct {
	store    *store.Store
	locker   Locker
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper. locker may be nil when only one replica runs.
// A non-positive interval falls back to the default.
func NewSweeper(store *store.Store, locker Locker, timeout, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		locker:   locker,
		timeout:  timeout,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// SweepOnce releases every orphaned item locked longer than the timeout
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Sweeper.SweepOnce")
	defer span.End()

	orphans, err := s.store.ListOrphanedTradingItems(ctx, time.Now().Add(-s.timeout))
	if err != nil {
		return 0, err
	}

	released := 0
	for _, item := range orphans {
		err := s.store.ReleaseOrphanedItem(ctx, item.ID)
		if errors.Is(err, store.ErrNotMatched) {
			continue
		}
		if err != nil {
			return released, err
		}
		released++
		util.OrphanedItemsReleasedTotal.Inc()
		s.logger.Warn("Released orphaned trading item",
			zap.Int64("item_id", item.ID),
			zap.Time("locked_since", item.UpdatedAt))
	}
	return released, nil
}

// Run sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("Starting orphan sweeper",
		zap.Duration("timeout", s.timeout),
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Orphan sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.locker != nil {
		token := uuid.New().String()
		ok, err := s.locker.AcquireLock(ctx, sweeperLockKey, token, s.interval)
		if err != nil {
			s.logger.Error("Failed to acquire sweeper lock", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), sweeperLockKey, token); err != nil {
				s.logger.Warn("Failed to release sweeper lock", zap.Error(err))
			}
		}()
	}

	released, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Error("Orphan sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		s.logger.Info("Orphan sweep completed", zap.Int("released", released))
	}
}
