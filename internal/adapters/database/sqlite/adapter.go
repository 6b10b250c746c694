// Package sqlite implements the SQLite adapter over mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// SQLiteAdapter implements the database.Adapter interface for SQLite.
type SQLiteAdapter struct {
	database.Pool
}

// NewSQLiteAdapter creates a new SQLite adapter.
func NewSQLiteAdapter(config database.Config) (*SQLiteAdapter, error) {
	config.URL = strings.TrimPrefix(config.URL, "sqlite://")
	if config.URL == "" {
		config.URL = ":memory:"
	}
	return &SQLiteAdapter{Pool: database.NewPool(config, dialect.SQLite)}, nil
}

// Connect opens the database file.
func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite3", a.Config().URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives in its connection.
	if a.Config().URL == ":memory:" || strings.Contains(a.Config().URL, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return a.Attach(ctx, db)
}

// Exec runs a statement directly against the database. It exists to load
// fixtures and is never reachable from the execution engine.
func (a *SQLiteAdapter) Exec(ctx context.Context, query string, args ...any) error {
	if a.DB() == nil {
		return database.ErrNotConnected
	}
	_, err := a.DB().ExecContext(ctx, query, args...)
	return err
}

var _ database.Adapter = (*SQLiteAdapter)(nil)
