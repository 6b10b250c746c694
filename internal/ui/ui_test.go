package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevErr := Out, Err
	Out, Err = &buf, &buf
	t.Cleanup(func() { Out, Err = prevOut, prevErr })
	return &buf
}

func TestHighlightSQL(t *testing.T) {
	sql := "SELECT subject_id FROM patients WHERE gender = 'F' -- women\nAND anchor_age > 65"

	prev := color.NoColor
	t.Cleanup(func() { color.NoColor = prev })

	color.NoColor = true
	assert.Equal(t, sql, HighlightSQL(sql))

	color.NoColor = false
	out := HighlightSQL(sql)
	assert.NotEqual(t, sql, out)
	assert.Contains(t, out, "subject_id")
	assert.Contains(t, out, "'F'")
}

func TestResultRows(t *testing.T) {
	res := &database.Result{
		Columns:  []string{"stay_id", "los", "careunit"},
		Rows:     [][]any{{int64(1), 2.5, []byte("MICU")}, {int64(2), nil, "SICU"}},
		RowCount: 2,
	}
	headers, rows := ResultRows(res)
	assert.Equal(t, []string{"stay_id", "los", "careunit"}, headers)
	assert.Equal(t, [][]string{{"1", "2.5", "MICU"}, {"2", "NULL", "SICU"}}, rows)

	h, r := ResultRows(nil)
	assert.Nil(t, h)
	assert.Nil(t, r)
}

func TestRenderTable(t *testing.T) {
	out, err := RenderTable([]string{"step", "rows"}, [][]string{{"Population", "100"}, {"Final Cohort", "12"}})
	require.NoError(t, err)
	assert.Contains(t, out, "Population")
	assert.Contains(t, out, "Final Cohort")
}

func TestRepairReport(t *testing.T) {
	o := &orchestrator.Outcome{
		RunID:    "run-1",
		Status:   orchestrator.StatusExhausted,
		FinalSQL: "SELECT los FROM icustays\n",
		Profile:  rewrite.Aggressive,
		Attempts: []orchestrator.Attempt{
			{Round: 1, Source: orchestrator.SourcePostprocess, SQL: "SELECT los FROM icustays",
				AppliedRules: []rewrite.RuleApplication{{RuleName: "rename_identifiers"}}},
			{Round: 1, Source: orchestrator.SourceTemplateRepair, Error: "no such column: a|b"},
		},
		Executions: 2,
		LastError:  errors.New("no such column: a|b"),
	}
	md := RepairReport(o)
	assert.Contains(t, md, "# Run run-1")
	assert.Contains(t, md, "**Status:** exhausted")
	assert.Contains(t, md, "```sql\nSELECT los FROM icustays\n```")
	assert.Contains(t, md, "| 1 | postprocess | rename_identifiers | - |")
	assert.Contains(t, md, `no such column: a\|b`)
}

func TestPrintHelpers(t *testing.T) {
	buf := capture(t)
	PrintSuccess("compiled %d steps", 3)
	PrintWarning("mandatory step dropped")
	PrintList([]string{"first", "second"})
	PrintDiff("a\nb", "a\nc")

	out := buf.String()
	assert.Contains(t, out, "compiled 3 steps")
	assert.Contains(t, out, "mandatory step dropped")
	assert.Contains(t, out, "• second")
	assert.Contains(t, out, "- b")
	assert.Contains(t, out, "+ c")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Title\n\nbody text")
	require.NoError(t, err)
	assert.Contains(t, out, "body text")
}
