// Package pgx implements the PostgreSQL adapter over jackc/pgx through its
// database/sql bridge.
package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// Adapter implements database.Adapter with pgx.
type Adapter struct {
	database.Pool
}

// NewAdapter creates a new pgx adapter.
func NewAdapter(config database.Config) (*Adapter, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("pgx: empty connection url")
	}
	return &Adapter{Pool: database.NewPool(config, dialect.PostgreSQL)}, nil
}

// Connect parses the URL, applies the connect timeout and opens the pool.
func (a *Adapter) Connect(ctx context.Context) error {
	cfg, err := pgx.ParseConfig(a.Config().URL)
	if err != nil {
		return fmt.Errorf("failed to parse connection url: %w", err)
	}
	if t := a.Config().ConnectTimeout; t > 0 {
		cfg.ConnectTimeout = t
	}
	// Every statement runs once; skip server-side prepare round trips.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	return a.Attach(ctx, stdlib.OpenDB(*cfg))
}

var _ database.Adapter = (*Adapter)(nil)
