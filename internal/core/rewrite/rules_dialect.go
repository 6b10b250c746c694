package rewrite

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// stripFences removes markdown code fences and trailing statement terminators.
type stripFences struct{}

func (stripFences) Name() string       { return "strip_fences" }
func (stripFences) Category() Category { return CategoryDialect }
func (stripFences) Risk() Risk         { return RiskLow }

var fenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n?(.*?)\\s*```\\s*$")

func (stripFences) Apply(sql string, _ *Context) (string, bool) {
	out := sql
	if m := fenceRe.FindStringSubmatch(out); m != nil {
		out = m[1]
	}
	out = trimSQL(out)
	return out, out != sql
}

// booleanLiterals rewrites TRUE/FALSE for dialects without a boolean type.
type booleanLiterals struct{}

func (booleanLiterals) Name() string       { return "boolean_literals" }
func (booleanLiterals) Category() Category { return CategoryDialect }
func (booleanLiterals) Risk() Risk         { return RiskLow }

func (booleanLiterals) Apply(sql string, rc *Context) (string, bool) {
	if rc.Dialect.SupportsBoolean() {
		return sql, false
	}
	ts, err := sqlscan.Tokenize(sql)
	if err != nil {
		return sql, false
	}
	ed := sqlscan.NewEditor(sql)
	for i, t := range ts {
		if !t.Is("true") && !t.Is("false") {
			continue
		}
		val := rc.Dialect.True()
		if t.Is("false") {
			val = rc.Dialect.False()
		}
		p := ts.Prev(i)
		switch {
		case p >= 0 && ts[p].Is("is"):
			ed.Replace(ts[p].Offset, t.End(), "= "+val)
		case p >= 0 && ts[p].Is("not") && ts.Prev(p) >= 0 && ts[ts.Prev(p)].Is("is"):
			ed.Replace(ts[ts.Prev(p)].Offset, t.End(), "<> "+val)
		default:
			ed.Replace(t.Offset, t.End(), val)
		}
	}
	return ed.String(), ed.Changed()
}

// intervalLiterals canonicalises INTERVAL literals to the target dialect's form.
type intervalLiterals struct{}

func (intervalLiterals) Name() string       { return "interval_literals" }
func (intervalLiterals) Category() Category { return CategoryDialect }
func (intervalLiterals) Risk() Risk         { return RiskLow }

var (
	intervalUnits = map[string]string{
		"day": "day", "days": "day", "hour": "hour", "hours": "hour",
		"minute": "minute", "minutes": "minute", "month": "month", "months": "month",
		"year": "year", "years": "year",
	}
	intervalTextRe = regexp.MustCompile(`^\s*(\d+)\s*([a-zA-Z]+)?\s*$`)
)

func (intervalLiterals) Apply(sql string, rc *Context) (string, bool) {
	ts, err := sqlscan.Tokenize(sql)
	if err != nil {
		return sql, false
	}
	ed := sqlscan.NewEditor(sql)
	for i, t := range ts {
		if !t.Is("interval") {
			continue
		}
		amountAt := ts.Next(i)
		if amountAt < 0 {
			continue
		}
		var amount int
		unit := ""
		end := amountAt
		switch ts[amountAt].Kind {
		case sqlscan.KindString:
			m := intervalTextRe.FindStringSubmatch(ts[amountAt].StringValue())
			if m == nil {
				continue
			}
			amount, _ = strconv.Atoi(m[1])
			unit = intervalUnits[strings.ToLower(m[2])]
		case sqlscan.KindNumber:
			n, err := strconv.Atoi(ts[amountAt].Text)
			if err != nil {
				continue
			}
			amount = n
		default:
			continue
		}
		if unit == "" {
			u := ts.Next(amountAt)
			if u < 0 || ts[u].Kind != sqlscan.KindIdent {
				continue
			}
			unit = intervalUnits[lower(ts[u].Text)]
			end = u
		} else if u := ts.Next(amountAt); u >= 0 && ts[u].Kind == sqlscan.KindIdent && intervalUnits[lower(ts[u].Text)] != "" {
			// INTERVAL '7 days' DAY: the trailing qualifier repeats the unit.
			end = u
		}
		if unit == "" {
			continue
		}
		canonical := rc.Dialect.Interval(amount, unit)
		if canonical == "" {
			continue
		}
		if ts.Slice(i, end+1) != canonical {
			ed.Replace(t.Offset, ts[end].End(), canonical)
		}
	}
	return ed.String(), ed.Changed()
}

// rowLimitSyntax rewrites LIMIT, FETCH FIRST and TOP into the dialect's row cap.
type rowLimitSyntax struct{}

func (rowLimitSyntax) Name() string       { return "row_limit_syntax" }
func (rowLimitSyntax) Category() Category { return CategoryDialect }
func (rowLimitSyntax) Risk() Risk         { return RiskLow }

func (rowLimitSyntax) Apply(sql string, rc *Context) (string, bool) {
	lim, ok := outerRowLimit(sql)
	if !ok {
		return sql, false
	}
	if nativeForm(rc, lim.form) {
		return sql, false
	}
	out := rc.Dialect.LimitRows(lim.inner, lim.n)
	return out, out != sql
}

// lockingClause removes FOR UPDATE / FOR SHARE from read queries.
type lockingClause struct{}

func (lockingClause) Name() string       { return "locking_clause" }
func (lockingClause) Category() Category { return CategoryDialect }
func (lockingClause) Risk() Risk         { return RiskLow }

func (lockingClause) Apply(sql string, _ *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ed := sqlscan.NewEditor(sql)
	for _, sel := range q.selects {
		if sel.ForAt < 0 {
			continue
		}
		end := sel.End
		if sel.SetOpAt > sel.ForAt {
			end = sel.SetOpAt
		}
		last := q.ts.Prev(end)
		if last < sel.ForAt {
			continue
		}
		start := sel.ForAt
		if p := q.ts.Prev(sel.ForAt); p >= 0 {
			start = p + 1
		}
		ed.Replace(q.ts[start].Offset, q.ts[last].End(), "")
	}
	return ed.String(), ed.Changed()
}
