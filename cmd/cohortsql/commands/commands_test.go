package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/config"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/ui"
)

const adultsWithMI = `{
  "policy": {"episode_selector": "all"},
  "steps": [
    {"type": "age_range", "min": 18, "max": 89},
    {"type": "diagnosis_prefix", "codes": [{"prefix": "I21", "icd_version": 10}]}
  ]
}`

// execute runs the root command against an in-memory filesystem.
func execute(t *testing.T, files map[string]string, args ...string) (string, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	prevFs, prevOut, prevErr := config.AppFs, ui.Out, ui.Err
	var buf bytes.Buffer
	config.AppFs, ui.Out, ui.Err = fs, &buf, &buf
	t.Cleanup(func() { config.AppFs, ui.Out, ui.Err = prevFs, prevOut, prevErr })
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	app := NewApp()
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	root := NewRootCommand(app)
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestCompileCommand(t *testing.T) {
	out, err := execute(t, map[string]string{"/spec.json": adultsWithMI}, "compile", "/spec.json", "--part", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "WITH population AS (")
	assert.Contains(t, out, "SELECT COUNT(*) AS cohort_size FROM step_1")

	out, err = execute(t, map[string]string{"/spec.json": adultsWithMI}, "compile", "/spec.json", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"CohortSQL"`)

	_, err = execute(t, map[string]string{"/spec.json": `{"steps":[{"type":"astrology"}]}`}, "compile", "/spec.json")
	assert.Error(t, err)

	_, err = execute(t, nil, "compile", "/missing.json")
	assert.Error(t, err)
}

func TestRewriteCommand(t *testing.T) {
	out, err := execute(t, nil, "rewrite", "--json", "--sql", "SELECT AVG(i.los_icu) FROM icustays i")
	require.NoError(t, err)
	assert.Contains(t, out, "rename_identifiers")
	assert.Contains(t, out, "i.los)")

	_, err = execute(t, nil, "rewrite", "--sql", "SELECT 1", "--file", "/x.sql")
	assert.Error(t, err)
	_, err = execute(t, nil, "rewrite")
	assert.Error(t, err)
}

func TestScopeCommand(t *testing.T) {
	files := map[string]string{
		"/base.sql":   "SELECT a.hadm_id FROM admissions a",
		"/cohort.sql": "SELECT hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'I21%'",
		"/items.sql":  "SELECT itemid FROM d_items",
	}
	out, err := execute(t, files, "scope", "/base.sql", "/cohort.sql", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"structural"`)
	assert.Contains(t, out, "scope_cohort")

	_, err = execute(t, files, "scope", "/items.sql", "/cohort.sql")
	assert.Error(t, err)
}

func TestRunCommand_NoDatabase(t *testing.T) {
	_, err := execute(t, nil, "run", "--sql", "SELECT 1")
	assert.ErrorContains(t, err, "no database configured")
}

func TestCatalogCommands(t *testing.T) {
	files := map[string]string{
		"/catalog.yaml": string(catalog.DefaultDocument()),
		"/broken.yaml":  "version: \"9.0\"\ntables: {}\n",
	}
	out, err := execute(t, files, "catalog", "validate", "/catalog.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, err = execute(t, files, "catalog", "validate", "/broken.yaml")
	assert.Error(t, err)

	out, err = execute(t, nil, "catalog", "show", "--table", "icustays")
	require.NoError(t, err)
	assert.Contains(t, out, "stay_id")
}

func TestFixesCommands(t *testing.T) {
	out, err := execute(t, nil, "fixes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no learned fixes")

	out, err = execute(t, nil, "fixes", "purge", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "no learned fixes")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cohortsql version dev")
	assert.Contains(t, out, "Go Version")

	out, err = execute(t, nil, "--json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
}
