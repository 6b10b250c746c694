package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// ErrNotConnected is returned by Pool methods before Connect.
var ErrNotConnected = errors.New("database not connected")

// Pool is the shared database/sql plumbing the per-driver adapters embed.
type Pool struct {
	db      *sql.DB
	config  Config
	dialect dialect.Dialect
}

// NewPool returns an unconnected pool for config.
func NewPool(config Config, d dialect.Dialect) Pool {
	return Pool{config: config, dialect: d}
}

// Config returns the connection configuration.
func (p *Pool) Config() Config { return p.config }

// Attach installs db, applies pool settings and pings it within the connect timeout.
func (p *Pool) Attach(ctx context.Context, db *sql.DB) error {
	if p.config.MaxConnections > 0 {
		db.SetMaxOpenConns(p.config.MaxConnections)
		db.SetMaxIdleConns(max(1, p.config.MaxConnections/2))
	}
	if p.config.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.config.MaxIdleTime)
	}
	if p.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	p.db = db
	return nil
}

// Disconnect closes the database connection.
func (p *Pool) Disconnect(context.Context) error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if p.db == nil {
		return nil, ErrNotConnected
	}
	return p.db.QueryContext(ctx, query, args...)
}

// Ping checks if the database connection is alive.
func (p *Pool) Ping(ctx context.Context) error {
	if p.db == nil {
		return ErrNotConnected
	}
	return p.db.PingContext(ctx)
}

// Dialect returns the SQL dialect.
func (p *Pool) Dialect() dialect.Dialect { return p.dialect }

// DB returns the underlying handle, or nil before Connect.
func (p *Pool) DB() *sql.DB { return p.db }
