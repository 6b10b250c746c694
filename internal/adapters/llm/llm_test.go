package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/adapters/llm"
	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"bare", "SELECT 1 FROM dual", "SELECT 1 FROM dual"},
		{"fenced", "Here you go:\n```sql\nSELECT a FROM t;\n```\nDone.", "SELECT a FROM t"},
		{"prose before", "The fixed query is WITH x AS (SELECT 1 AS a) SELECT a FROM x; thanks", "WITH x AS (SELECT 1 AS a) SELECT a FROM x"},
		{"semicolon in string", "SELECT ';' AS s FROM t; SELECT 2", "SELECT ';' AS s FROM t"},
		{"with in prose", "Here is the query with the fix:\nSELECT a FROM t", "SELECT a FROM t"},
		{"apostrophe in prose", "Here's the fixed query:\nSELECT a FROM t WHERE b = 'x'", "SELECT a FROM t WHERE b = 'x'"},
		{"cte opening a line", "Try this:\nWITH x AS (\nSELECT 1 AS a FROM dual\n)\nSELECT a FROM x", "WITH x AS (\nSELECT 1 AS a FROM dual\n)\nSELECT a FROM x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ExtractSQL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := llm.ExtractSQL("I cannot help with that.")
	assert.ErrorIs(t, err, llm.ErrNoSQL)
}

func TestBuildPrompt(t *testing.T) {
	req := orchestrator.RepairRequest{
		Question: "How long are ICU stays?",
		SQL:      "SELECT i.los_icu FROM icu_stays i",
		Error:    &repair.DBError{Kind: repair.KindInvalidIdentifier, Message: `ORA-00904: "I"."LOS_ICU": invalid identifier`},
	}
	p := llm.BuildPrompt(req, catalog.Default(), dialect.Oracle)
	assert.Contains(t, p, "SQL (oracle):")
	assert.Contains(t, p, "invalid_identifier")
	assert.Contains(t, p, "- icustays(subject_id, hadm_id, stay_id")
	assert.NotContains(t, p, "Broaden")

	req.Error = nil
	req.Reason = repair.ErrZeroRows.Error()
	req.Broaden = true
	p = llm.BuildPrompt(req, catalog.Default(), dialect.SQLite)
	assert.Contains(t, p, "Problem:\nquery returned no rows")
	assert.Contains(t, p, "Broaden")
}

func TestStatic(t *testing.T) {
	s := llm.Static{"SELECT bad FROM t": "SELECT good FROM t"}
	out, err := s.Repair(context.Background(), orchestrator.RepairRequest{SQL: " SELECT bad FROM t "})
	require.NoError(t, err)
	assert.Equal(t, "SELECT good FROM t", out)

	out, err = s.Repair(context.Background(), orchestrator.RepairRequest{SQL: "SELECT other FROM t"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT other FROM t", out)
}

func TestNewRepairer(t *testing.T) {
	ctx := context.Background()
	r, err := llm.NewRepairer(ctx, llm.Config{Provider: "none"}, catalog.Default(), dialect.Oracle)
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = llm.NewRepairer(ctx, llm.Config{Provider: "genai"}, catalog.Default(), dialect.Oracle)
	assert.Error(t, err)

	_, err = llm.NewRepairer(ctx, llm.Config{Provider: "openai"}, catalog.Default(), dialect.Oracle)
	assert.Error(t, err)
}

func TestGenAIRepairer(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.Unmarshal(body, &req)
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			prompt = req.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"`+
			"```sql\\nSELECT i.los FROM icustays i\\n```"+`"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	g, err := llm.NewGenAIRepairer(context.Background(),
		llm.Config{APIKey: "test-key", BaseURL: srv.URL}, catalog.Default(), dialect.Oracle)
	require.NoError(t, err)

	out, err := g.Repair(context.Background(), orchestrator.RepairRequest{
		Question: "ICU length of stay",
		SQL:      "SELECT i.los_icu FROM icustays i",
		Reason:   "invalid identifier",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT i.los FROM icustays i", out)
	assert.Contains(t, prompt, "SELECT i.los_icu FROM icustays i")
}
