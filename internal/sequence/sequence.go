// Package sequence mints strictly increasing integer ids per counter name.
package sequence

import (
	"context"
	"fmt"
	"time"

	"barter-service/internal/apperr"
	"barter-service/internal/util"

	"go.uber.org/zap"
)

// Allocator issues ids for a logical counter. Every backend performs the increment and
// the read as one atomic operation on the backing store.
type Allocator interface {
	Allocate(ctx context.Context, counterName string) (int64, error)
}

// Incrementer is a single atomic increment-and-read, as exposed by the SQL store
// (upsert ... RETURNING) and the Redis client (INCR).
type Incrementer interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

// CounterAllocator allocates from any Incrementer.
type CounterAllocator struct {
	counters Incrementer
}

// NewCounterAllocator creates an allocator on top of counters
func NewCounterAllocator(counters Incrementer) *CounterAllocator {
	return &CounterAllocator{counters: counters}
}

// Allocate returns the next id for counterName
func (a *CounterAllocator) Allocate(ctx context.Context, counterName string) (int64, error) {
	return a.counters.NextSequence(ctx, counterName)
}

// Instrumented wraps an Allocator with tracing, metrics and error classification.
type Instrumented struct {
	next    Allocator
	backend string
	logger  *zap.Logger
}

// Instrument decorates next; backend labels the metrics.
func Instrument(next Allocator, backend string) *Instrumented {
	return &Instrumented{
		next:    next,
		backend: backend,
		logger:  util.GetLogger(),
	}
}

// Allocate delegates to the wrapped allocator
func (a *Instrumented) Allocate(ctx context.Context, counterName string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "Allocator.Allocate")
	defer span.End()

	if counterName == "" {
		return 0, apperr.Invalid("counter name is required")
	}

	start := time.Now()
	id, err := a.next.Allocate(ctx, counterName)
	util.SequenceAllocateLatency.WithLabelValues(a.backend).Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Error("Sequence allocation failed",
			zap.String("counter", counterName),
			zap.String("backend", a.backend),
			zap.Error(err))
		return 0, apperr.Unavailable(fmt.Sprintf("allocate %s id", counterName), err)
	}

	util.SequenceAllocationsTotal.WithLabelValues(counterName).Inc()
	return id, nil
}
