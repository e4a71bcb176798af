package store

import (
	"context"
	"path/filepath"
	"testing"
)

// NewTestStore opens a fresh SQLite-backed store in a temp dir with the schema applied.
func NewTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "barter.db")
	s, err := NewStore("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}
