package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MrSnakeDoc/ans/internal/store"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	name       TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	endpoint   TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	is_listed  INTEGER NOT NULL DEFAULT 0,
	list_price INTEGER NOT NULL DEFAULT 0,
	CHECK (is_listed = 1 OR list_price = 0)
);

CREATE TABLE IF NOT EXISTS accounts (
	principal TEXT PRIMARY KEY,
	balance   INTEGER NOT NULL CHECK (balance >= 0),
	granted   INTEGER NOT NULL DEFAULT 0
);
`

// Store keeps records and balances in a SQLite database.
// A single connection is used and transactions start IMMEDIATE, so writers
// serialize on the database lock instead of failing on upgrade.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}
