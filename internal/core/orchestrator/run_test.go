package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
)

type execFunc func(ctx context.Context, sql string) (*database.Result, error)

func (f execFunc) Execute(ctx context.Context, sql string) (*database.Result, error) {
	return f(ctx, sql)
}

func TestExecute_ReentersOwnRepairState(t *testing.T) {
	const (
		broken = "SELECT COUNT(*) AS c FROM patients WHERE gender = 'F'"
		empty  = "SELECT COUNT(*) AS c FROM patients WHERE gender = 'X'"
	)
	dbErr := errors.New("no such column: gender")
	exec := execFunc(func(_ context.Context, sql string) (*database.Result, error) {
		if sql == broken {
			return nil, dbErr
		}
		return &database.Result{Columns: []string{"c"}}, nil
	})
	engine := rewrite.NewEngine(catalog.Default(), rewrite.WithDialect(dialect.SQLite))
	r := New(engine, exec).newRun(Request{Question: "What is the ratio of female to male patients?"})

	r.sql = broken
	state, err := r.execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateErrorRepair, state)

	r.sql = empty
	state, err = r.execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateZeroResultRepair, state)
	assert.Nil(t, r.failure)

	r.sql = broken
	state, err = r.execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateErrorRepair, state)
	require.NotNil(t, r.failure)
	assert.Equal(t, repair.KindUnknownColumn, r.failure.Kind)
	assert.Equal(t, dbErr, r.lastErr)
	assert.Nil(t, r.out.Result)

	r.sql = empty
	state, err = r.execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateZeroResultRepair, state)
	assert.Nil(t, r.failure)
	assert.Equal(t, repair.ErrZeroRows, r.lastErr)
	require.NotNil(t, r.out.Result)

	assert.Equal(t, 2, r.out.Executions)
}
