package store

import (
	"context"
	"database/sql"

	"barter-service/internal/apperr"
	"barter-service/internal/models"
)

// NextSequence increments the named counter and returns the new value in one statement.
// The row is created on first use.
func (q queries) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := q.get(ctx, &value, `
		INSERT INTO counters (name, value, updated_at)
		VALUES (?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE
		SET value = counters.value + 1, updated_at = CURRENT_TIMESTAMP
		RETURNING value`, name)
	if err != nil {
		return 0, apperr.Unavailable("allocate sequence "+name, err)
	}
	return value, nil
}

// GetCounter retrieves a counter by name
func (q queries) GetCounter(ctx context.Context, name string) (*models.Counter, error) {
	var counter models.Counter
	err := q.get(ctx, &counter, "SELECT name, value, updated_at FROM counters WHERE name = ?", name)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("counter not found: %s", name)
	}
	if err != nil {
		return nil, apperr.Unavailable("get counter", err)
	}
	return &counter, nil
}
