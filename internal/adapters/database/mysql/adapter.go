// Package mysql implements the MySQL adapter.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// MySQLAdapter implements the database.Adapter interface for MySQL.
type MySQLAdapter struct {
	database.Pool
}

// NewMySQLAdapter creates a new MySQL adapter.
func NewMySQLAdapter(config database.Config) (*MySQLAdapter, error) {
	if _, err := mysql.ParseDSN(config.URL); err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return &MySQLAdapter{Pool: database.NewPool(config, dialect.MySQL)}, nil
}

// Connect establishes a connection to the MySQL database.
func (a *MySQLAdapter) Connect(ctx context.Context) error {
	cfg, err := mysql.ParseDSN(a.Config().URL)
	if err != nil {
		return fmt.Errorf("failed to parse dsn: %w", err)
	}
	cfg.ParseTime = true
	if t := a.Config().ConnectTimeout; t > 0 {
		cfg.Timeout = t
	}
	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	return a.Attach(ctx, sql.OpenDB(conn))
}

var _ database.Adapter = (*MySQLAdapter)(nil)
