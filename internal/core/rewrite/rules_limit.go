package rewrite

import (
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// nativeForm reports whether form is a row cap the context's dialect accepts as is.
func nativeForm(rc *Context, form limitForm) bool {
	switch {
	case rc.Dialect.UsesRownum():
		return form == formRownum
	case form == formLimit:
		return true
	case form == formFetch:
		return rc.Dialect == dialect.PostgreSQL
	}
	return false
}

// timeBuckets are functions that bucket a timestamp into a period.
var timeBuckets = map[string]bool{
	"trunc": true, "date_trunc": true, "extract": true, "strftime": true, "year": true,
	"month": true, "to_char": true, "date_format": true, "date": true,
}

// unboundedSeries reports whether sql is an aggregate grouped by a time
// bucket, whose row count grows with the data rather than with the question.
func unboundedSeries(sql string) bool {
	stmt, err := sqlscan.Parse(sql)
	if err != nil || stmt.Main == nil {
		return false
	}
	ts, main := stmt.Tokens, stmt.Main
	if main.GroupAt < 0 || !hasAggregate(ts, main.Start, firstOf(main.End, main.FromAt)) {
		return false
	}
	end := firstOf(main.End, main.HavingAt, main.OrderAt, main.LimitAt, main.FetchAt, main.OffsetAt, main.SetOpAt)
	for i := main.GroupAt; i < end; i++ {
		if ts[i].Kind != sqlscan.KindIdent || !timeBuckets[lower(ts[i].Text)] {
			continue
		}
		if n := ts.Next(i); n >= 0 && ts[n].IsPunct("(") {
			return true
		}
	}
	return false
}

// hasOpenCap reports whether the main select carries a LIMIT, FETCH or OFFSET
// that outerRowLimit could not take apart.
func hasOpenCap(sql string) bool {
	stmt, err := sqlscan.Parse(sql)
	if err != nil || stmt.Main == nil {
		return true
	}
	return stmt.Main.HasLimit() || stmt.Main.OffsetAt >= 0
}

// topNConsistency makes an explicit "top N" question end in exactly one outer
// cap of N rows.
type topNConsistency struct{}

func (topNConsistency) Name() string       { return "top_n_consistency" }
func (topNConsistency) Category() Category { return CategoryRowLimit }
func (topNConsistency) Risk() Risk         { return RiskLow }

func (topNConsistency) Apply(sql string, rc *Context) (string, bool) {
	n := rc.Hints.TopN
	if n <= 0 {
		return sql, false
	}
	stripped, caps := stripRowLimits(sql)
	if len(caps) == 1 && caps[0].n == n && nativeForm(rc, caps[0].form) {
		return sql, false
	}
	if hasOpenCap(stripped) {
		return sql, false
	}
	out := rc.Dialect.LimitRows(stripped, n)
	return out, out != sql
}

// defaultRowCap bounds time-bucketed aggregates when the question set no limit.
type defaultRowCap struct{}

func (defaultRowCap) Name() string       { return "default_row_cap" }
func (defaultRowCap) Category() Category { return CategoryRowLimit }
func (defaultRowCap) Risk() Risk         { return RiskLow }

func (defaultRowCap) Apply(sql string, rc *Context) (string, bool) {
	if rc.Hints.TopN > 0 || rc.Hints.LimitMentioned || rc.DefaultRowCap <= 0 {
		return sql, false
	}
	if _, caps := stripRowLimits(sql); len(caps) > 0 || hasOpenCap(sql) || !unboundedSeries(sql) {
		return sql, false
	}
	return rc.Dialect.LimitRows(sql, rc.DefaultRowCap), true
}
