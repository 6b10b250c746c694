package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/sqlite"
	"github.com/satishbabariya/cohortsql/internal/adapters/telemetry"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/learnedfix"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
	"github.com/satishbabariya/cohortsql/internal/core/sqlsafe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine(t *testing.T) *rewrite.Engine {
	t.Helper()
	return rewrite.NewEngine(catalog.Default(), rewrite.WithDialect(dialect.SQLite))
}

func fixture(t *testing.T) database.Executor {
	t.Helper()
	ctx := context.Background()
	a, err := sqlite.NewSQLiteAdapter(database.Config{Provider: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, a.Connect(ctx))
	t.Cleanup(func() { _ = a.Disconnect(ctx) })

	require.NoError(t, a.Exec(ctx, `CREATE TABLE icustays (subject_id INTEGER, hadm_id INTEGER, stay_id INTEGER,
		first_careunit TEXT, last_careunit TEXT, intime TEXT, outtime TEXT, los REAL)`))
	for _, row := range [][]any{
		{1, 10, 100, "MICU", "MICU", "2150-01-01 00:00:00", "2150-01-04 00:00:00", 3.0},
		{2, 20, 200, "SICU", "SICU", "2150-02-01 00:00:00", "2150-02-02 00:00:00", 1.0},
		{3, 30, 300, "CCU", "CCU", "2150-03-01 00:00:00", "2150-03-06 00:00:00", 5.0},
	} {
		require.NoError(t, a.Exec(ctx, `INSERT INTO icustays VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, row...))
	}
	return database.NewEngine(a)
}

// countingRepairer returns fixed for every call and counts calls.
type countingRepairer struct {
	calls atomic.Int32
	fn    func(n int, req orchestrator.RepairRequest) string
}

func (c *countingRepairer) Repair(_ context.Context, req orchestrator.RepairRequest) (string, error) {
	n := int(c.calls.Add(1))
	return c.fn(n, req), nil
}

type executorFunc func(ctx context.Context, sql string) (*database.Result, error)

func (f executorFunc) Execute(ctx context.Context, sql string) (*database.Result, error) {
	return f(ctx, sql)
}

func sources(attempts []orchestrator.Attempt) []orchestrator.Source {
	out := make([]orchestrator.Source, len(attempts))
	for i, a := range attempts {
		out[i] = a.Source
	}
	return out
}

func TestRun_RenamedColumnFixedByRules(t *testing.T) {
	rep := &countingRepairer{fn: func(int, orchestrator.RepairRequest) string { return "SELECT 1" }}
	o := orchestrator.New(newEngine(t), fixture(t), orchestrator.WithRepairer(rep))

	out, err := o.Run(context.Background(), orchestrator.Request{
		Question: "How long did each ICU stay last?",
		SQL:      "SELECT i.stay_id, i.los_icu FROM icustays i",
	})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, out.Status)
	assert.Equal(t, 1, out.Executions)
	assert.Equal(t, 3, out.Result.RowCount)
	assert.Contains(t, out.FinalSQL, "i.los")
	assert.NotContains(t, out.FinalSQL, "los_icu")
	assert.EqualValues(t, 0, rep.calls.Load())

	require.NotEmpty(t, out.Attempts)
	assert.Equal(t, 1, out.Attempts[0].Round)
	assert.Equal(t, orchestrator.SourcePostprocess, out.Attempts[0].Source)
	assert.Contains(t, rewrite.Names(out.Attempts[0].AppliedRules), "rename_identifiers")
	assert.Equal(t, rewrite.Relaxed, out.Profile)
	assert.NotEmpty(t, out.RunID)
}

func TestRun_TemplateRepairBeforeCollaborator(t *testing.T) {
	rep := &countingRepairer{fn: func(int, orchestrator.RepairRequest) string { return "SELECT 1" }}
	o := orchestrator.New(newEngine(t), fixture(t), orchestrator.WithRepairer(rep))

	out, err := o.Run(context.Background(), orchestrator.Request{
		Question: "List ICU stays",
		SQL:      "SELECT stay_id, frist_careunit FROM icustays",
	})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, out.Status)
	assert.Contains(t, out.FinalSQL, "first_careunit")
	assert.Contains(t, sources(out.Attempts), orchestrator.SourceTemplateRepair)
	assert.EqualValues(t, 0, rep.calls.Load())
	assert.Empty(t, out.LearnedFixes)
}

func TestRun_LearnedFixReuse(t *testing.T) {
	const failing = "SELECT stay_id FROM icustays WHERE stay_length > 2"
	rep := &countingRepairer{fn: func(_ int, req orchestrator.RepairRequest) string {
		return "SELECT stay_id FROM icustays WHERE los > 2"
	}}
	store := learnedfix.NewMemory()
	tel := telemetry.NewMemoryTelemetry()
	o := orchestrator.New(newEngine(t), fixture(t),
		orchestrator.WithRepairer(rep),
		orchestrator.WithStore(store),
		orchestrator.WithTelemetry(tel))
	req := orchestrator.Request{Question: "Which ICU stays lasted more than two days?", SQL: failing}

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, first.Status)
	assert.Equal(t, 2, first.Result.RowCount)
	assert.EqualValues(t, 1, rep.calls.Load())
	assert.Contains(t, sources(first.Attempts), orchestrator.SourceLLMRepair)
	require.Len(t, first.LearnedFixes, 1)
	assert.Equal(t, repair.Signature(failing), first.LearnedFixes[0])

	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, second.Status)
	assert.EqualValues(t, 1, rep.calls.Load(), "second run must not call the collaborator")
	assert.Equal(t, 1, second.Executions)
	require.NotEmpty(t, second.Attempts)
	assert.Equal(t, 0, second.Attempts[0].Round)
	assert.Equal(t, orchestrator.SourceLearnedRule, second.Attempts[0].Source)
	assert.Empty(t, second.LearnedFixes)

	fix, err := store.Get(context.Background(), repair.Signature(failing))
	require.NoError(t, err)
	assert.EqualValues(t, 1, fix.UseCount)
	assert.Equal(t, "SELECT stay_id FROM icustays WHERE los > 2", fix.FixedSQL)

	snap := tel.Snapshot()
	assert.Equal(t, 1, snap.LearnedFix[telemetry.LearnedFixWrite])
	assert.Equal(t, 1, snap.LearnedFix[telemetry.LearnedFixHit])
	assert.Equal(t, 2, snap.Outcomes[string(orchestrator.StatusSuccess)])
}

func TestRun_TemplateRepairAfterCollaboratorIsNotLearned(t *testing.T) {
	exec := executorFunc(func(_ context.Context, sql string) (*database.Result, error) {
		switch {
		case strings.Contains(sql, "NULLIF"):
			return &database.Result{Columns: []string{"r"}, Rows: [][]any{{1.0}}, RowCount: 1}, nil
		case strings.Contains(sql, "/"):
			return nil, errors.New("division by zero")
		}
		return nil, errors.New("boom")
	})
	rep := &countingRepairer{fn: func(int, orchestrator.RepairRequest) string {
		return "SELECT stay_id, los / los AS r FROM icustays"
	}}
	store := learnedfix.NewMemory()
	o := orchestrator.New(newEngine(t), exec,
		orchestrator.WithRepairer(rep),
		orchestrator.WithStore(store))
	req := orchestrator.Request{Question: "List the stays", SQL: "SELECT stay_id FROM icustays"}

	out, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, out.Status)
	assert.Contains(t, out.FinalSQL, "NULLIF")
	assert.EqualValues(t, 1, rep.calls.Load())
	assert.Contains(t, sources(out.Attempts), orchestrator.SourceLLMRepair)
	assert.Contains(t, sources(out.Attempts), orchestrator.SourceTemplateRepair)
	assert.Empty(t, out.LearnedFixes)

	_, err = store.Get(context.Background(), repair.Signature(req.SQL))
	assert.ErrorIs(t, err, learnedfix.ErrNotFound)
}

func TestRun_ConcurrentRepairsKeepTheirQuestion(t *testing.T) {
	const failing = "SELECT subject_id FROM patients"
	exec := executorFunc(func(_ context.Context, sql string) (*database.Result, error) {
		if !strings.Contains(sql, "AS answer") {
			return nil, errors.New("boom")
		}
		return &database.Result{Columns: []string{"answer"}, Rows: [][]any{{int64(1)}}, RowCount: 1}, nil
	})

	var (
		mu        sync.Mutex
		questions []string
	)
	arrived := make(chan struct{}, 2)
	rep := orchestrator.RepairerFunc(func(ctx context.Context, req orchestrator.RepairRequest) (string, error) {
		mu.Lock()
		questions = append(questions, req.Question)
		mu.Unlock()
		arrived <- struct{}{}
		// Hold the call until both runs are repairing.
		deadline := time.After(time.Second)
		for len(arrived) < cap(arrived) {
			select {
			case <-deadline:
				return "", errors.New("second run never asked")
			case <-time.After(time.Millisecond):
			}
		}
		if strings.Contains(req.Question, "admitted") {
			return "SELECT 1 AS answer_admitted", nil
		}
		return "SELECT 2 AS answer_discharged", nil
	})
	o := orchestrator.New(newEngine(t), exec, orchestrator.WithRepairer(rep))

	var admitted, discharged *orchestrator.Outcome
	var g errgroup.Group
	g.Go(func() (err error) {
		admitted, err = o.Run(context.Background(), orchestrator.Request{Question: "Which subjects were admitted?", SQL: failing})
		return err
	})
	g.Go(func() (err error) {
		discharged, err = o.Run(context.Background(), orchestrator.Request{Question: "Which subjects were discharged?", SQL: failing})
		return err
	})
	require.NoError(t, g.Wait())

	assert.ElementsMatch(t, []string{"Which subjects were admitted?", "Which subjects were discharged?"}, questions)
	assert.Contains(t, admitted.FinalSQL, "answer_admitted")
	assert.Contains(t, discharged.FinalSQL, "answer_discharged")
}

func TestRun_Bounded(t *testing.T) {
	dbErr := errors.New(`no such column: x`)
	failing := executorFunc(func(context.Context, string) (*database.Result, error) { return nil, dbErr })
	empty := executorFunc(func(context.Context, string) (*database.Result, error) {
		return &database.Result{Columns: []string{"ratio"}}, nil
	})
	same := func(_ int, req orchestrator.RepairRequest) string { return req.SQL }
	distinct := func(n int, _ orchestrator.RepairRequest) string {
		return fmt.Sprintf("SELECT COUNT(*) AS c%d FROM patients", n)
	}

	tests := []struct {
		name     string
		executor database.Executor
		repair   func(int, orchestrator.RepairRequest) string
		want     error
	}{
		{"error, repeated repair", failing, same, dbErr},
		{"error, distinct repairs", failing, distinct, dbErr},
		{"empty, repeated repair", empty, same, repair.ErrZeroRows},
		{"empty, distinct repairs", empty, distinct, repair.ErrZeroRows},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &countingRepairer{fn: tt.repair}
			o := orchestrator.New(newEngine(t), tt.executor,
				orchestrator.WithRepairer(rep),
				orchestrator.WithBudgets(3, 2))
			out, err := o.Run(context.Background(), orchestrator.Request{
				Question: "What is the ratio of female to male patients?",
				SQL:      "SELECT COUNT(*) AS c FROM patients",
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, orchestrator.ErrExhausted)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, orchestrator.StatusExhausted, out.Status)
			assert.LessOrEqual(t, out.Executions, 1+3+2)
			assert.GreaterOrEqual(t, out.Executions, 1)
			assert.Equal(t, tt.want, out.LastError)
		})
	}
}

func TestRun_ReadOnly(t *testing.T) {
	t.Run("unsafe request", func(t *testing.T) {
		var executed atomic.Int32
		exec := executorFunc(func(context.Context, string) (*database.Result, error) {
			executed.Add(1)
			return &database.Result{}, nil
		})
		o := orchestrator.New(newEngine(t), exec)
		out, err := o.Run(context.Background(), orchestrator.Request{SQL: "DROP TABLE patients"})
		assert.ErrorIs(t, err, sqlsafe.ErrUnsafeSQL)
		assert.Equal(t, orchestrator.StatusRejected, out.Status)
		assert.Equal(t, 0, out.Executions)
		assert.EqualValues(t, 0, executed.Load())
	})

	t.Run("unsafe repair", func(t *testing.T) {
		var executed []string
		exec := executorFunc(func(_ context.Context, sql string) (*database.Result, error) {
			executed = append(executed, sql)
			return nil, errors.New("boom")
		})
		rep := &countingRepairer{fn: func(int, orchestrator.RepairRequest) string { return "DELETE FROM patients" }}
		o := orchestrator.New(newEngine(t), exec, orchestrator.WithRepairer(rep))
		out, err := o.Run(context.Background(), orchestrator.Request{SQL: "SELECT subject_id FROM patients"})
		assert.ErrorIs(t, err, sqlsafe.ErrUnsafeSQL)
		assert.Equal(t, orchestrator.StatusRejected, out.Status)
		assert.Equal(t, 1, out.Executions)
		assert.Equal(t, []string{"SELECT subject_id FROM patients"}, executed)
	})
}

func TestRun_ZeroRowsOnNarrowQueryIsSuccess(t *testing.T) {
	o := orchestrator.New(newEngine(t), fixture(t))
	out, err := o.Run(context.Background(), orchestrator.Request{
		Question: "What is the rate of long stays for stay 999?",
		SQL:      "SELECT COUNT(*) AS n FROM icustays WHERE stay_id = 999 AND los > 100 GROUP BY stay_id",
	})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, out.Status)
	assert.Equal(t, 0, out.Result.RowCount)
	assert.Equal(t, 1, out.Executions)
}

func TestRun_TimeoutIsRepairable(t *testing.T) {
	calls := 0
	exec := executorFunc(func(ctx context.Context, sql string) (*database.Result, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &database.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}, RowCount: 1}, nil
	})
	rep := &countingRepairer{fn: func(_ int, req orchestrator.RepairRequest) string {
		if req.Error != nil && req.Error.Kind == repair.KindTimeout {
			return "SELECT COUNT(*) AS n FROM icustays"
		}
		return req.SQL
	}}
	o := orchestrator.New(newEngine(t), exec,
		orchestrator.WithRepairer(rep),
		orchestrator.WithTimeouts(10*time.Millisecond, time.Second))
	out, err := o.Run(context.Background(), orchestrator.Request{SQL: "SELECT stay_id FROM icustays"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, out.Status)
	assert.Equal(t, 2, out.Executions)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := executorFunc(func(context.Context, string) (*database.Result, error) {
		cancel()
		return nil, context.Canceled
	})
	o := orchestrator.New(newEngine(t), exec)
	_, err := o.Run(ctx, orchestrator.Request{SQL: "SELECT 1"})
	assert.ErrorIs(t, err, context.Canceled)
}
