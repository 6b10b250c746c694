package orchestrator

import (
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

var identifierColumns = map[string]bool{
	catalog.SubjectID: true,
	catalog.HadmID:    true,
	catalog.StayID:    true,
}

// suspiciouslyEmpty reports whether an empty result for sql should trigger a
// zero-result repair. It is a heuristic: the question must imply a
// non-trivial aggregate and the SQL must not pin specific identifiers.
func suspiciouslyEmpty(h rewrite.Hints, sql string) bool {
	return h.NonTrivial() && !identifierFiltered(sql)
}

// identifierFiltered reports whether sql compares an identifier column to
// numeric literals with = or IN.
func identifierFiltered(sql string) bool {
	ts, err := sqlscan.Tokenize(sql)
	if err != nil {
		return false
	}
	for i, t := range ts {
		if t.Kind != sqlscan.KindIdent || !identifierColumns[strings.ToLower(t.Text)] {
			continue
		}
		op := ts.Next(i)
		if op < 0 {
			continue
		}
		switch {
		case ts[op].Kind == sqlscan.KindOperator && ts[op].Text == "=":
			if v := ts.Next(op); v >= 0 && ts[v].Kind == sqlscan.KindNumber {
				return true
			}
		case ts[op].Is("in"):
			open := ts.Next(op)
			if open < 0 || !ts[open].IsPunct("(") {
				continue
			}
			if v := ts.Next(open); v >= 0 && ts[v].Kind == sqlscan.KindNumber {
				return true
			}
		}
	}
	return false
}
