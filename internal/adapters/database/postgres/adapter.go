// Package postgres implements the PostgreSQL adapter over lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// PostgresAdapter implements the database.Adapter interface for PostgreSQL.
type PostgresAdapter struct {
	database.Pool
}

// NewPostgresAdapter creates a new PostgreSQL adapter.
func NewPostgresAdapter(config database.Config) (*PostgresAdapter, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("postgres: empty connection url")
	}
	return &PostgresAdapter{Pool: database.NewPool(config, dialect.PostgreSQL)}, nil
}

// Connect establishes a connection to the PostgreSQL database.
func (a *PostgresAdapter) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", a.Config().URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	return a.Attach(ctx, db)
}

var _ database.Adapter = (*PostgresAdapter)(nil)
