package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/sqlite"
	"github.com/satishbabariya/cohortsql/internal/adapters/telemetry"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
	"github.com/satishbabariya/cohortsql/internal/core/sqlsafe"
)

func fixture(t *testing.T) *sqlite.SQLiteAdapter {
	t.Helper()
	ctx := context.Background()
	a, err := sqlite.NewSQLiteAdapter(database.Config{Provider: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, a.Connect(ctx))
	t.Cleanup(func() { _ = a.Disconnect(ctx) })

	require.NoError(t, a.Exec(ctx, `CREATE TABLE patients (subject_id INTEGER, gender TEXT, anchor_age INTEGER)`))
	for _, row := range [][]any{{1, "F", 70}, {2, "M", 45}, {3, "F", 88}} {
		require.NoError(t, a.Exec(ctx, `INSERT INTO patients VALUES (?, ?, ?)`, row...))
	}
	return a
}

func TestEngine_Execute(t *testing.T) {
	a := fixture(t)
	assert.Equal(t, dialect.SQLite, a.Dialect())

	tel := telemetry.NewMemoryTelemetry()
	eng := database.NewEngine(a, database.WithEngineTelemetry(tel))
	res, err := eng.Execute(context.Background(), "SELECT subject_id, gender FROM patients WHERE gender = 'F' ORDER BY subject_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "gender"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, [][]any{{int64(1), "F"}, {int64(3), "F"}}, res.Rows)

	count, err := eng.Execute(context.Background(), "SELECT COUNT(*) FROM patients")
	require.NoError(t, err)
	n, ok := count.Scalar()
	require.True(t, ok)
	assert.EqualValues(t, 3, n)

	assert.Equal(t, 2, tel.Snapshot().Executions)
}

func TestEngine_MaxRows(t *testing.T) {
	eng := database.NewEngine(fixture(t), database.WithMaxRows(2))
	res, err := eng.Execute(context.Background(), "SELECT subject_id FROM patients")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.Equal(t, 3, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestEngine_RejectsWrites(t *testing.T) {
	a := fixture(t)
	eng := database.NewEngine(a)
	for _, stmt := range []string{
		"DELETE FROM patients",
		"SELECT 1; DROP TABLE patients",
		"UPDATE patients SET gender = 'M'",
	} {
		_, err := eng.Execute(context.Background(), stmt)
		assert.ErrorIs(t, err, sqlsafe.ErrUnsafeSQL, stmt)
	}
	res, err := eng.Execute(context.Background(), "SELECT COUNT(*) FROM patients")
	require.NoError(t, err)
	n, _ := res.Scalar()
	assert.EqualValues(t, 3, n)
}

func TestEngine_ClassifiesDriverErrors(t *testing.T) {
	tel := telemetry.NewMemoryTelemetry()
	eng := database.NewEngine(fixture(t), database.WithEngineTelemetry(tel))
	_, err := eng.Execute(context.Background(), "SELECT los_icu FROM patients")
	require.Error(t, err)

	var execErr *database.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "SELECT los_icu FROM patients", execErr.SQL)

	dbErr := repair.Classify(err)
	assert.Equal(t, repair.KindUnknownColumn, dbErr.Kind)
	assert.Equal(t, "los_icu", dbErr.Identifier)
	assert.Equal(t, 1, tel.Snapshot().Failures["unknown_column"])
}

func TestPool_NotConnected(t *testing.T) {
	a, err := sqlite.NewSQLiteAdapter(database.Config{URL: "sqlite://" + t.TempDir() + "/x.db"})
	require.NoError(t, err)
	_, err = a.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, database.ErrNotConnected)
	assert.ErrorIs(t, a.Ping(context.Background()), database.ErrNotConnected)
	assert.NoError(t, a.Disconnect(context.Background()))
}
