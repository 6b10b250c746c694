package sqlsafe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{name: "plain select", sql: "SELECT * FROM admissions"},
		{name: "cte", sql: "WITH x AS (SELECT 1 AS n FROM dual) SELECT n FROM x"},
		{name: "parenthesized", sql: "(SELECT 1 FROM dual)"},
		{name: "trailing semicolon", sql: "SELECT 1 FROM dual;"},
		{name: "keyword in literal", sql: "SELECT * FROM d_items WHERE label = 'DROP TABLE'"},
		{name: "keyword in comment", sql: "SELECT 1 FROM dual -- delete later"},
		{name: "replace function", sql: "SELECT REPLACE(icd_code, '.', '') FROM diagnoses_icd"},
		{name: "qualified keyword column", sql: "SELECT t.merge FROM t"},
		{name: "delete", sql: "DELETE FROM admissions", wantErr: true},
		{name: "update", sql: "UPDATE admissions SET race = 'x'", wantErr: true},
		{name: "stacked statements", sql: "SELECT 1 FROM dual; DROP TABLE admissions", wantErr: true},
		{name: "write inside cte", sql: "WITH x AS (DELETE FROM t RETURNING *) SELECT * FROM x", wantErr: true},
		{name: "select into", sql: "SELECT * INTO backup FROM admissions", wantErr: true},
		{name: "for update", sql: "SELECT * FROM admissions FOR UPDATE", wantErr: true},
		{name: "pragma", sql: "PRAGMA writable_schema = 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.sql)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsafeSQL)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheck_Empty(t *testing.T) {
	assert.ErrorIs(t, Check("  -- nothing\n"), ErrEmptySQL)
	assert.False(t, IsReadOnly(""))
}
