package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/adapters/database/sqlite"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/compiler"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/intent"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
	"github.com/satishbabariya/cohortsql/internal/core/scoping"
)

// fixture loads a small MIMIC-shaped dataset: eight adult admissions and
// one child, five adults with an I21 diagnosis.
func fixture(t *testing.T, cat *catalog.Catalog) database.Executor {
	t.Helper()
	ctx := context.Background()
	a, err := sqlite.NewSQLiteAdapter(database.Config{Provider: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, a.Connect(ctx))
	t.Cleanup(func() { _ = a.Disconnect(ctx) })

	exec := func(q string, args ...any) {
		require.NoError(t, a.Exec(ctx, q, args...), q)
	}
	for _, table := range cat.Tables() {
		exec(fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cat.Columns(table), ", ")))
	}
	for i := 1; i <= 9; i++ {
		age := 40 + i
		if i == 9 {
			age = 10
		}
		exec(`INSERT INTO patients (subject_id, gender, anchor_age, anchor_year) VALUES (?, 'F', ?, 2150)`, i, age)
		exec(`INSERT INTO admissions (subject_id, hadm_id, admittime, dischtime) VALUES (?, ?, '2150-03-01 08:00:00', '2150-03-09 08:00:00')`, i, 100+i)
		exec(`INSERT INTO icustays (subject_id, hadm_id, stay_id, intime, outtime, los) VALUES (?, ?, ?, '2150-03-01 10:00:00', '2150-03-04 10:00:00', ?)`, i, 100+i, 1000+i, i)
	}
	for _, hadm := range []int{101, 102, 103, 104, 105, 109} {
		exec(`INSERT INTO diagnoses_icd (subject_id, hadm_id, seq_num, icd_code, icd_version) VALUES (?, ?, 1, 'I214', 10)`, hadm-100, hadm)
	}
	return database.NewEngine(a)
}

type harness struct {
	cohorts *CohortService
	queries *QueryService
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cat := catalog.Default()
	exec := fixture(t, cat)
	engine := rewrite.NewEngine(cat, rewrite.WithDialect(dialect.SQLite))
	orch := orchestrator.New(engine, exec)
	return harness{
		cohorts: NewCohortService(compiler.New(cat, compiler.WithDialect(dialect.SQLite)), orch, nil),
		queries: NewQueryService(engine, orch, scoping.New(cat)),
	}
}

func adultsWithMI() *intent.Spec {
	return &intent.Spec{
		Policy: intent.DefaultPolicy(),
		Steps: []intent.Step{
			&intent.AgeRange{Min: 18, Max: 89},
			&intent.DiagnosisPrefix{Codes: []intent.Code{{Prefix: "I21", ICDVersion: 10}}},
		},
	}
}

func TestCohortService_Compile(t *testing.T) {
	h := newHarness(t)

	b, err := h.cohorts.Compile(context.Background(), adultsWithMI())
	require.NoError(t, err)
	assert.Equal(t, []string{compiler.PopulationCTE, "step_1"}, b.CTEs)

	_, err = h.cohorts.Compile(context.Background(), &intent.Spec{})
	assert.ErrorIs(t, err, ErrNoSteps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.cohorts.Compile(ctx, adultsWithMI())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCohortService_Run(t *testing.T) {
	h := newHarness(t)

	run, err := h.cohorts.Run(context.Background(), adultsWithMI())
	require.NoError(t, err)
	assert.Equal(t, int64(5), run.Size)
	assert.Equal(t, orchestrator.StatusSuccess, run.Count.Status)
	assert.Empty(t, run.Warnings)

	want := []StepCount{
		{Label: "Population", Order: 0, Rows: 8},
		{Label: "Diagnosis I21", Order: 1, Rows: 5},
		{Label: compiler.FinalLabel, Order: 2, Rows: 5},
	}
	if diff := cmp.Diff(want, run.Steps); diff != "" {
		t.Errorf("step counts mismatch (-want +got):\n%s", diff)
	}
}

func TestDriftWarnings(t *testing.T) {
	steps := []StepCount{
		{Label: "Population", Rows: 100},
		{Label: "Diagnosis I21", Rows: 40},
		{Label: "Heart rate > 100", Rows: 55},
		{Label: compiler.FinalLabel, Rows: 55},
	}
	got := driftWarnings(steps)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], `"Heart rate > 100" has 55 rows, more than "Diagnosis I21" (40)`)

	assert.Empty(t, driftWarnings(steps[:2]))
	assert.Empty(t, driftWarnings(nil))
}

func TestQueryService_Rewrite(t *testing.T) {
	h := newHarness(t)

	res := h.queries.Rewrite("average icu length of stay", "SELECT AVG(i.los_icu) FROM icustays i", false)
	assert.Equal(t, rewrite.Relaxed, res.Profile)
	assert.Contains(t, res.SQL, "i.los")
	assert.NotContains(t, res.SQL, "los_icu")
	assert.Contains(t, rewrite.Names(res.Applied), "rename_identifiers")

	res = h.queries.Rewrite("", "SELECT 1 FROM icustays", true)
	assert.Equal(t, rewrite.Aggressive, res.Profile)
}

func TestQueryService_Execute(t *testing.T) {
	h := newHarness(t)

	out, err := h.queries.Execute(context.Background(), "stays longer than three days",
		"SELECT stay_id FROM icustays WHERE los > 3 ORDER BY stay_id")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, out.Status)
	assert.Equal(t, 6, out.Result.RowCount)
}

func TestQueryService_Scope(t *testing.T) {
	h := newHarness(t)
	cohort := "SELECT subject_id, hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'I21%'"

	out, scoped, err := h.queries.ExecuteScoped(context.Background(), "",
		"SELECT a.hadm_id FROM admissions a ORDER BY a.hadm_id", cohort)
	require.NoError(t, err)
	assert.Equal(t, scoping.StrategyStructural, scoped.Strategy)
	assert.Equal(t, 6, out.Result.RowCount)

	_, ok := h.queries.Scope("SELECT itemid FROM d_items", cohort)
	assert.False(t, ok)
	_, _, err = h.queries.ExecuteScoped(context.Background(), "", "SELECT itemid FROM d_items", cohort)
	assert.ErrorIs(t, err, ErrNoSharedKey)
}
