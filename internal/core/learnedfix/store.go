// Package learnedfix persists SQL repairs keyed by the signature of the SQL
// they fixed, so later identical failures skip the repair collaborator.
package learnedfix

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get, Touch and Delete for an unknown signature.
var ErrNotFound = errors.New("learned fix not found")

// Fix is one learned repair.
type Fix struct {
	Signature      string    `json:"signature"`
	FailedSQL      string    `json:"failed_sql"`
	FixedSQL       string    `json:"fixed_sql"`
	ErrorSignature string    `json:"error_signature,omitempty"`
	Source         string    `json:"source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UseCount       int64     `json:"use_count"`
}

// Store is a concurrent keyed store of learned fixes. Upsert is last-writer-wins
// and Touch increments the use count inside the store.
type Store interface {
	Get(ctx context.Context, signature string) (*Fix, error)
	Upsert(ctx context.Context, signature string, fix Fix) error
	Touch(ctx context.Context, signature string) error
	List(ctx context.Context) ([]Fix, error)
	Delete(ctx context.Context, signature string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store for driver. dsn is a file path for sqlite and a
// connection URL for postgres.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("learned fixes: unknown driver %q", driver)
}
