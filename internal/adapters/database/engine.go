package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/adapters/telemetry"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
	"github.com/satishbabariya/cohortsql/internal/core/sqlsafe"
)

// Result is the outcome of one successful execution.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	// RowCount counts every row the query produced, including any beyond the
	// engine's row limit.
	RowCount  int  `json:"row_count"`
	Truncated bool `json:"truncated,omitempty"`
}

// Executor runs a read-only statement.
type Executor interface {
	Execute(ctx context.Context, sql string) (*Result, error)
}

// ExecutionError wraps a driver error with the statement that raised it.
type ExecutionError struct {
	SQL   string
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute: %v", e.Cause)
}

// Unwrap returns the driver error.
func (e *ExecutionError) Unwrap() error { return e.Cause }

// Engine executes statements through an Adapter after checking that they are
// read-only.
type Engine struct {
	adapter   Adapter
	maxRows   int
	logger    *zap.Logger
	telemetry telemetry.Telemetry
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxRows bounds the rows kept in a Result.
func WithMaxRows(n int) EngineOption {
	return func(e *Engine) { e.maxRows = n }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineTelemetry sets the telemetry sink.
func WithEngineTelemetry(t telemetry.Telemetry) EngineOption {
	return func(e *Engine) { e.telemetry = t }
}

// NewEngine returns an engine over adapter.
func NewEngine(adapter Adapter, opts ...EngineOption) *Engine {
	e := &Engine{adapter: adapter, maxRows: 10000, logger: zap.NewNop(), telemetry: telemetry.NewNoopTelemetry()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Adapter returns the engine's adapter.
func (e *Engine) Adapter() Adapter { return e.adapter }

// Execute runs query and collects its rows. Statements that are not
// read-only are rejected with sqlsafe.ErrUnsafeSQL before reaching the driver.
func (e *Engine) Execute(ctx context.Context, query string) (*Result, error) {
	if err := sqlsafe.Check(query); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := e.run(ctx, query)
	info := telemetry.ExecutionInfo{Duration: time.Since(start), Success: err == nil}
	if err != nil {
		info.ErrorKind = string(repair.Classify(err).Kind)
		e.logger.Debug("execution failed", zap.Duration("duration", info.Duration), zap.Error(err))
	} else {
		info.Rows = res.RowCount
		e.logger.Debug("execution succeeded", zap.Duration("duration", info.Duration), zap.Int("rows", res.RowCount))
	}
	e.telemetry.RecordExecution(ctx, info)
	return res, err
}

func (e *Engine) run(ctx context.Context, query string) (*Result, error) {
	rows, err := e.adapter.Query(ctx, query)
	if err != nil {
		return nil, &ExecutionError{SQL: query, Cause: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &ExecutionError{SQL: query, Cause: err}
	}
	res := &Result{Columns: columns}
	for rows.Next() {
		res.RowCount++
		if e.maxRows > 0 && len(res.Rows) >= e.maxRows {
			res.Truncated = true
			continue
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ExecutionError{SQL: query, Cause: err}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{SQL: query, Cause: err}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &ExecutionError{SQL: query, Cause: ctx.Err()}
	}
	return res, nil
}

// Scalar returns the first column of the first row as an int64, for COUNT
// style queries.
func (r *Result) Scalar() (int64, bool) {
	if r == nil || len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return 0, false
	}
	return toInt64(r.Rows[0][0])
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		var out int64
		if _, err := fmt.Sscan(n, &out); err == nil {
			return out, true
		}
	case sql.NullInt64:
		return n.Int64, n.Valid
	}
	return 0, false
}

// Int returns column col of row i as an int64.
func (r *Result) Int(i, col int) (int64, bool) {
	if r == nil || i >= len(r.Rows) || col >= len(r.Rows[i]) {
		return 0, false
	}
	return toInt64(r.Rows[i][col])
}
