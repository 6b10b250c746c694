// Package database defines the read-only database adapter interface and the
// execution engine that runs candidate SQL against it.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// Adapter is a read-only connection to one database. It has no Exec: every
// statement the system sends is a query.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Ping(ctx context.Context) error
	// Dialect is the SQL flavour rewrites and compiled SQL must target.
	Dialect() dialect.Dialect
}

// Config holds database connection configuration. Zero values leave the
// driver defaults in place.
type Config struct {
	Provider       string
	URL            string
	MaxConnections int
	MaxIdleTime    time.Duration
	ConnectTimeout time.Duration
}
