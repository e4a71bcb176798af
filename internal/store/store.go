package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"barter-service/internal/apperr"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotMatched is returned by conditional updates whose WHERE clause matched no row.
var ErrNotMatched = errors.New("no row matched the update condition")

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// queries holds every statement so it can run on either the pool or a transaction.
type queries struct {
	ext sqlx.ExtContext
}

func (q queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q queries) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q queries) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
}

// Store runs queries against the connection pool and opens transactions.
type Store struct {
	queries
	db     *sqlx.DB
	driver string
}

// Tx is a unit of work spanning several records; all reads and writes go through it.
type Tx struct {
	queries
}

// NewStore creates a new database store. driver is "postgres" or "sqlite".
func NewStore(driver, databaseURL string) (*Store, error) {
	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite allows one writer; a single connection keeps transactions serialized.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{queries: queries{ext: db}, db: db, driver: driver}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaFor(s.driver), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a transaction, committing only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{queries: queries{ext: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Unavailable("commit transaction", err)
	}
	return nil
}

// schemaFor adapts the schema to driver. Postgres stores instants as TIMESTAMPTZ so
// CURRENT_TIMESTAMP and bound time.Time values compare the same in any session time zone.
func schemaFor(driver string) string {
	if driver == "postgres" {
		return strings.ReplaceAll(schema, " TIMESTAMP ", " TIMESTAMPTZ ")
	}
	return schema
}

const schema = `
CREATE TABLE IF NOT EXISTS counters (
	name       TEXT PRIMARY KEY,
	value      BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	image       TEXT NOT NULL DEFAULT '',
	owner_id    BIGINT NOT NULL,
	owner_email TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items (status);

CREATE INDEX IF NOT EXISTS idx_items_owner ON items (owner_id);

CREATE TABLE IF NOT EXISTS trades (
	id                   BIGINT PRIMARY KEY,
	giver_item_id        BIGINT NOT NULL,
	giver_item_name      TEXT NOT NULL DEFAULT '',
	giver_owner_id       BIGINT NOT NULL,
	giver_owner_email    TEXT NOT NULL,
	giver_status         TEXT NOT NULL,
	receiver_item_id     BIGINT NOT NULL,
	receiver_item_name   TEXT NOT NULL DEFAULT '',
	receiver_owner_id    BIGINT NOT NULL,
	receiver_owner_email TEXT NOT NULL,
	receiver_status      TEXT NOT NULL,
	status               TEXT NOT NULL,
	created_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trades_giver_email ON trades (giver_owner_email);

CREATE INDEX IF NOT EXISTS idx_trades_receiver_email ON trades (receiver_owner_email);

CREATE TABLE IF NOT EXISTS trade_events (
	event_id    TEXT PRIMARY KEY,
	trade_id    BIGINT NOT NULL,
	event_type  TEXT NOT NULL,
	actor_email TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	occurred_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_events_trade ON trade_events (trade_id);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)
`
