// Package dialect describes the SQL dialects cohort queries are compiled to
// and repaired for.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect identifies a target SQL dialect.
type Dialect string

const (
	// Oracle dialect. It is the default target of the repair rules.
	Oracle Dialect = "oracle"
	// PostgreSQL dialect.
	PostgreSQL Dialect = "postgres"
	// MySQL dialect.
	MySQL Dialect = "mysql"
	// SQLite dialect.
	SQLite Dialect = "sqlite"
)

// All lists every supported dialect.
var All = []Dialect{Oracle, PostgreSQL, MySQL, SQLite}

// Parse resolves a dialect name, accepting common provider aliases.
func Parse(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "oracle", "ora":
		return Oracle, nil
	case "postgres", "postgresql", "pgx":
		return PostgreSQL, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %q", name)
	}
}

// String returns the dialect name.
func (d Dialect) String() string {
	return string(d)
}

// SupportsBoolean reports whether TRUE/FALSE literals are valid in predicates.
func (d Dialect) SupportsBoolean() bool {
	switch d {
	case PostgreSQL, MySQL:
		return true
	default:
		return false
	}
}

// True returns the literal for boolean true.
func (d Dialect) True() string {
	if d.SupportsBoolean() {
		return "TRUE"
	}
	return "1"
}

// False returns the literal for boolean false.
func (d Dialect) False() string {
	if d.SupportsBoolean() {
		return "FALSE"
	}
	return "0"
}

// AddHours returns an expression that adds n hours to the datetime expression expr.
func (d Dialect) AddHours(expr string, n int) string {
	switch d {
	case Oracle:
		return fmt.Sprintf("(%s + NUMTODSINTERVAL(%d, 'HOUR'))", expr, n)
	case PostgreSQL:
		return fmt.Sprintf("(%s + INTERVAL '%d hours')", expr, n)
	case MySQL:
		return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d HOUR)", expr, n)
	case SQLite:
		return fmt.Sprintf("datetime(%s, '%+d hours')", expr, n)
	default:
		return expr
	}
}

// AddDays returns an expression that adds n days to the datetime expression expr.
func (d Dialect) AddDays(expr string, n int) string {
	switch d {
	case Oracle:
		return fmt.Sprintf("(%s + NUMTODSINTERVAL(%d, 'DAY'))", expr, n)
	case PostgreSQL:
		return fmt.Sprintf("(%s + INTERVAL '%d days')", expr, n)
	case MySQL:
		return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d DAY)", expr, n)
	case SQLite:
		return fmt.Sprintf("datetime(%s, '%+d days')", expr, n)
	default:
		return expr
	}
}

// Interval returns a literal interval of n units, where unit is one of
// day, hour, minute, month or year. SQLite has no interval type; callers must
// use AddDays/AddHours there.
func (d Dialect) Interval(n int, unit string) string {
	unit = strings.ToUpper(strings.TrimSuffix(strings.ToLower(unit), "s"))
	switch d {
	case Oracle:
		return fmt.Sprintf("INTERVAL '%d' %s", n, unit)
	case PostgreSQL:
		return fmt.Sprintf("INTERVAL '%d %s'", n, strings.ToLower(unit)+"s")
	case MySQL:
		return fmt.Sprintf("INTERVAL %d %s", n, unit)
	default:
		return ""
	}
}

// Year returns an expression extracting the calendar year from a datetime.
func (d Dialect) Year(expr string) string {
	switch d {
	case SQLite:
		return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", expr)
	case MySQL:
		return fmt.Sprintf("YEAR(%s)", expr)
	default:
		return fmt.Sprintf("EXTRACT(YEAR FROM %s)", expr)
	}
}

// DaysBetween returns an expression for the number of days from start to end.
func (d Dialect) DaysBetween(start, end string) string {
	switch d {
	case Oracle:
		return fmt.Sprintf("(CAST(%s AS DATE) - CAST(%s AS DATE))", end, start)
	case PostgreSQL:
		return fmt.Sprintf("(EXTRACT(EPOCH FROM (%s - %s)) / 86400.0)", end, start)
	case MySQL:
		return fmt.Sprintf("(TIMESTAMPDIFF(SECOND, %s, %s) / 86400.0)", start, end)
	case SQLite:
		return fmt.Sprintf("(julianday(%s) - julianday(%s))", end, start)
	default:
		return ""
	}
}

// LimitRows wraps or suffixes sql so that at most n rows are returned.
func (d Dialect) LimitRows(sql string, n int) string {
	sql = strings.TrimRight(strings.TrimSpace(sql), ";")
	if d == Oracle {
		return fmt.Sprintf("SELECT * FROM (\n%s\n) WHERE ROWNUM <= %d", sql, n)
	}
	return fmt.Sprintf("%s\nLIMIT %d", sql, n)
}

// QuoteIdent quotes an identifier.
func (d Dialect) QuoteIdent(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString quotes a string literal.
func (d Dialect) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DualTable returns the FROM clause used for constant selects.
func (d Dialect) DualTable() string {
	if d == Oracle {
		return " FROM dual"
	}
	return ""
}

// UsesRownum reports whether row limiting is expressed with ROWNUM.
func (d Dialect) UsesRownum() bool {
	return d == Oracle
}
