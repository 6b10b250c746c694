package learnedfix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const (
	defaultSQLitePath = "cohortsql-fixes.db"
	defaultDSN        = "postgres://localhost/cohortsql?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// SQL is a Store backed by a learned_fixes table in SQLite or PostgreSQL.
type SQL struct {
	db *sql.DB
	// numbered selects $n placeholders instead of ?.
	numbered bool
	now      func() time.Time
}

var _ Store = (*SQL)(nil)

const schema = `CREATE TABLE IF NOT EXISTS learned_fixes (
	signature TEXT PRIMARY KEY,
	failed_sql TEXT NOT NULL,
	fixed_sql TEXT NOT NULL,
	error_signature TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	use_count BIGINT NOT NULL DEFAULT 0
)`

// OpenSQLite opens (creating if needed) a SQLite store at path.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		path = defaultSQLitePath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)
	return newSQL(ctx, db, false)
}

// OpenPostgres opens a PostgreSQL store through pgx.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQL(ctx, db, true)
}

func open(driver, dsn string) (*sql.DB, error) {
	openMu.Lock()
	defer openMu.Unlock()
	return sqlOpen(driver, dsn)
}

func newSQL(ctx context.Context, db *sql.DB, numbered bool) (*SQL, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure learned_fixes table: %w", err)
	}
	return &SQL{db: db, numbered: numbered, now: time.Now}, nil
}

// DB exposes the underlying handle.
func (s *SQL) DB() *sql.DB { return s.db }

// bind rewrites ? placeholders to $n when the backend needs them.
func (s *SQL) bind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const selectFix = `SELECT signature, failed_sql, fixed_sql, error_signature, source, created_at, use_count FROM learned_fixes`

// Get returns the fix for signature.
func (s *SQL) Get(ctx context.Context, signature string) (*Fix, error) {
	row := s.db.QueryRowContext(ctx, s.bind(selectFix+` WHERE signature = ?`), signature)
	f, err := scanFix(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get learned fix: %w", err)
	}
	return f, nil
}

// Upsert writes fix under signature in one statement; the last writer wins.
func (s *SQL) Upsert(ctx context.Context, signature string, fix Fix) error {
	created := fix.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.bind(`INSERT INTO learned_fixes
		(signature, failed_sql, fixed_sql, error_signature, source, created_at, use_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (signature) DO UPDATE SET
			failed_sql = excluded.failed_sql,
			fixed_sql = excluded.fixed_sql,
			error_signature = excluded.error_signature,
			source = excluded.source,
			created_at = excluded.created_at`),
		signature, fix.FailedSQL, fix.FixedSQL, fix.ErrorSignature, fix.Source,
		created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert learned fix: %w", err)
	}
	return nil
}

// Touch increments the use count of signature.
func (s *SQL) Touch(ctx context.Context, signature string) error {
	res, err := s.db.ExecContext(ctx, s.bind(`UPDATE learned_fixes SET use_count = use_count + 1 WHERE signature = ?`), signature)
	if err != nil {
		return fmt.Errorf("touch learned fix: %w", err)
	}
	return requireRow(res)
}

// List returns every fix, most used first.
func (s *SQL) List(ctx context.Context) ([]Fix, error) {
	rows, err := s.db.QueryContext(ctx, selectFix+` ORDER BY use_count DESC, signature`)
	if err != nil {
		return nil, fmt.Errorf("list learned fixes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Fix
	for rows.Next() {
		f, err := scanFix(rows)
		if err != nil {
			return nil, fmt.Errorf("scan learned fix: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Delete removes signature.
func (s *SQL) Delete(ctx context.Context, signature string) error {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM learned_fixes WHERE signature = ?`), signature)
	if err != nil {
		return fmt.Errorf("delete learned fix: %w", err)
	}
	return requireRow(res)
}

// Close closes the database.
func (s *SQL) Close() error { return s.db.Close() }

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFix(row scanner) (*Fix, error) {
	var (
		f       Fix
		created string
	)
	if err := row.Scan(&f.Signature, &f.FailedSQL, &f.FixedSQL, &f.ErrorSignature, &f.Source, &created, &f.UseCount); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	f.CreatedAt = t
	return &f, nil
}
