package learnedfix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	out := map[string]Store{"memory": NewMemory()}

	lite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "fixes.db"))
	require.NoError(t, err)
	out["sqlite"] = lite

	if dsn := os.Getenv("COHORTSQL_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		_, err = pg.DB().ExecContext(ctx, `DELETE FROM learned_fixes`)
		require.NoError(t, err)
		out["postgres"] = pg
	}
	for _, s := range out {
		s := s
		t.Cleanup(func() { _ = s.Close() })
	}
	return out
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Touch(ctx, "missing"), ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

			created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, s.Upsert(ctx, "sig-a", Fix{
				FailedSQL: "SELECT los_icu FROM icustays",
				FixedSQL:  "SELECT los FROM icustays",
				Source:    "llm_repair",
				CreatedAt: created,
			}))
			got, err := s.Get(ctx, "sig-a")
			require.NoError(t, err)
			assert.Equal(t, "sig-a", got.Signature)
			assert.Equal(t, "SELECT los FROM icustays", got.FixedSQL)
			assert.True(t, created.Equal(got.CreatedAt))
			assert.Zero(t, got.UseCount)

			require.NoError(t, s.Touch(ctx, "sig-a"))
			require.NoError(t, s.Touch(ctx, "sig-a"))
			got, err = s.Get(ctx, "sig-a")
			require.NoError(t, err)
			assert.EqualValues(t, 2, got.UseCount)

			// A later writer replaces the fix but keeps the use count.
			require.NoError(t, s.Upsert(ctx, "sig-a", Fix{FailedSQL: "SELECT los_icu FROM icustays", FixedSQL: "SELECT i.los FROM icustays i"}))
			got, err = s.Get(ctx, "sig-a")
			require.NoError(t, err)
			assert.Equal(t, "SELECT i.los FROM icustays i", got.FixedSQL)
			assert.EqualValues(t, 2, got.UseCount)

			require.NoError(t, s.Upsert(ctx, "sig-b", Fix{FailedSQL: "x", FixedSQL: "y"}))
			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "sig-a", list[0].Signature)
			assert.Equal(t, "sig-b", list[1].Signature)

			require.NoError(t, s.Delete(ctx, "sig-b"))
			_, err = s.Get(ctx, "sig-b")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ConcurrentUpsert(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					fix := Fix{FailedSQL: "SELECT bad", FixedSQL: fmt.Sprintf("SELECT %d", i)}
					assert.NoError(t, s.Upsert(ctx, "same", fix))
					assert.NoError(t, s.Touch(ctx, "same"))
				}(i)
			}
			wg.Wait()

			got, err := s.Get(ctx, "same")
			require.NoError(t, err)
			assert.Regexp(t, `^SELECT \d+$`, got.FixedSQL)
			assert.EqualValues(t, 16, got.UseCount)
			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "nested", "fixes.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQL{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "redis", "")
	assert.Error(t, err)
}

func TestSQL_Bind(t *testing.T) {
	s := &SQL{numbered: true}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", s.bind("UPDATE t SET a = ? WHERE b = ?"))
	s.numbered = false
	assert.Equal(t, "WHERE b = ?", s.bind("WHERE b = ?"))
}
