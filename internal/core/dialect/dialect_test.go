package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Dialect
	}{
		{"oracle", Oracle},
		{"PostgreSQL", PostgreSQL},
		{"pgx", PostgreSQL},
		{"sqlite3", SQLite},
		{" mysql ", MySQL},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := Parse("db2")
	assert.Error(t, err)
}

func TestAddHours(t *testing.T) {
	assert.Equal(t, "(p.anchor_start + NUMTODSINTERVAL(24, 'HOUR'))", Oracle.AddHours("p.anchor_start", 24))
	assert.Equal(t, "(p.anchor_start + INTERVAL '24 hours')", PostgreSQL.AddHours("p.anchor_start", 24))
	assert.Equal(t, "DATE_ADD(p.anchor_start, INTERVAL 24 HOUR)", MySQL.AddHours("p.anchor_start", 24))
	assert.Equal(t, "datetime(p.anchor_start, '+24 hours')", SQLite.AddHours("p.anchor_start", 24))
	assert.Equal(t, "datetime(p.anchor_end, '-24 hours')", SQLite.AddHours("p.anchor_end", -24))
}

func TestInterval(t *testing.T) {
	assert.Equal(t, "INTERVAL '30' DAY", Oracle.Interval(30, "days"))
	assert.Equal(t, "INTERVAL '30 days'", PostgreSQL.Interval(30, "day"))
	assert.Equal(t, "INTERVAL 30 DAY", MySQL.Interval(30, "DAY"))
	assert.Empty(t, SQLite.Interval(30, "day"))
}

func TestLimitRows(t *testing.T) {
	assert.Equal(t, "SELECT * FROM (\nSELECT 1 FROM dual\n) WHERE ROWNUM <= 10", Oracle.LimitRows("SELECT 1 FROM dual;", 10))
	assert.Equal(t, "SELECT 1\nLIMIT 10", SQLite.LimitRows("SELECT 1", 10))
}

func TestBooleansAndQuoting(t *testing.T) {
	assert.Equal(t, "1", Oracle.True())
	assert.Equal(t, "0", SQLite.False())
	assert.Equal(t, "TRUE", PostgreSQL.True())
	assert.Equal(t, "`order`", MySQL.QuoteIdent("order"))
	assert.Equal(t, `"a""b"`, Oracle.QuoteIdent(`a"b`))
	assert.Equal(t, "'O''Brien'", PostgreSQL.QuoteString("O'Brien"))
	assert.Equal(t, "CAST(strftime('%Y', a.admittime) AS INTEGER)", SQLite.Year("a.admittime"))
}
