package rewrite

import (
	"strconv"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// query is a parsed candidate statement with every SELECT block indexed.
type query struct {
	stmt    *sqlscan.Statement
	ts      sqlscan.Tokens
	selects []*sqlscan.Select
	// skip marks token indexes that name tables, aliases or CTEs rather than columns.
	skip map[int]bool
	// aliases are select-item aliases and CTE names, which shadow columns.
	aliases map[string]bool
}

func parseQuery(sql string) (*query, bool) {
	stmt, err := sqlscan.Parse(sql)
	if err != nil || stmt.Main == nil {
		return nil, false
	}
	q := &query{stmt: stmt, ts: stmt.Tokens, selects: stmt.Selects(), skip: map[int]bool{}, aliases: map[string]bool{}}
	for _, c := range stmt.CTEs {
		q.aliases[c.Name] = true
	}
	for _, sel := range q.selects {
		for _, ref := range sel.From {
			if ref.Subquery != nil {
				if ref.Alias != "" {
					q.skip[ref.End-1] = true
				}
				continue
			}
			for i := ref.Start; i < ref.End; i++ {
				q.skip[i] = true
			}
		}
		for _, item := range sel.Items {
			if item.Alias != "" {
				q.aliases[item.Alias] = true
				q.skip[item.End-1] = true
			}
		}
	}
	return q, true
}

// innermost returns the innermost SELECT block containing token i.
func (q *query) innermost(i int) *sqlscan.Select {
	var best *sqlscan.Select
	for _, sel := range q.selects {
		if sel.Start <= i && i < sel.End && (best == nil || sel.Start > best.Start) {
			best = sel
		}
	}
	return best
}

// colRef is a column reference in the token stream.
type colRef struct {
	at        int // column name token
	qualAt    int // qualifier token, or -1
	qualifier string
	name      string
}

// start returns the index of the first token of the reference.
func (c colRef) start() int {
	if c.qualAt >= 0 {
		return c.qualAt
	}
	return c.at
}

// columns returns the column references in tokens [from, to).
func (q *query) columns(from, to int) []colRef {
	ts := q.ts
	var out []colRef
	for i := from; i < to && i < len(ts); i++ {
		t := ts[i]
		if !t.IsName() || q.skip[i] {
			continue
		}
		if t.Kind == sqlscan.KindIdent && sqlscan.IsReserved(t.Text) {
			continue
		}
		next := ts.Next(i)
		if next >= 0 && (ts[next].IsPunct("(") || ts[next].IsPunct(".")) {
			continue
		}
		ref := colRef{at: i, qualAt: -1, name: t.Name()}
		prev := ts.Prev(i)
		if prev >= 0 {
			switch {
			case ts[prev].IsPunct("."):
				qa := ts.Prev(prev)
				if qa < 0 || !ts[qa].IsName() {
					continue
				}
				if pp := ts.Prev(qa); pp >= 0 && ts[pp].IsPunct(".") {
					// schema.table.column
					continue
				}
				ref.qualAt = qa
				ref.qualifier = ts[qa].Name()
			case ts[prev].Is("as"):
				continue
			}
		}
		if ref.qualAt < 0 && q.aliases[ref.name] {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// tables maps the references visible in sel (alias or name) to catalog tables.
// Subqueries and CTEs are absent from the map.
func (q *query) tables(sel *sqlscan.Select, cat *catalog.Catalog) map[string]string {
	out := make(map[string]string)
	for _, ref := range sel.From {
		if ref.Subquery != nil || ref.Name == "" {
			continue
		}
		if _, isCTE := q.stmt.CTE(ref.Name); isCTE && ref.Schema == "" {
			continue
		}
		if cat.HasTable(ref.Name) {
			out[ref.Ref()] = ref.Name
			if ref.Alias == "" {
				out[ref.Name] = ref.Name
			}
		}
	}
	return out
}

// visibleColumns returns every column name reachable from sel's FROM list,
// including subquery and CTE projections. ok is false when any FROM item
// could not be resolved.
func (q *query) visibleColumns(sel *sqlscan.Select, cat *catalog.Catalog) (map[string]bool, bool) {
	out := make(map[string]bool)
	ok := true
	for _, ref := range sel.From {
		var cols []string
		switch {
		case ref.Subquery != nil:
			var resolved bool
			cols, resolved = q.stmt.Projection(ref.Subquery, cat.Columns)
			ok = ok && resolved
		default:
			if cte, isCTE := q.stmt.CTE(ref.Name); isCTE && ref.Schema == "" {
				var resolved bool
				cols, resolved = q.stmt.Projection(cte.Body, cat.Columns)
				ok = ok && resolved
			} else if cat.HasTable(ref.Name) {
				cols = cat.Columns(ref.Name)
			} else {
				ok = false
			}
		}
		for _, c := range cols {
			out[c] = true
		}
	}
	return out, ok
}

// whereRange returns the token range of sel's WHERE condition, or ok false.
func whereRange(sel *sqlscan.Select) (int, int, bool) {
	if sel.WhereAt < 0 {
		return 0, 0, false
	}
	return sel.WhereAt + 1, sel.ClauseAfterWhere(), true
}

// removePredicate deletes tokens [from, to) from an AND chain. It refuses to
// remove a predicate joined by OR or sitting alone inside parentheses.
func removePredicate(ts sqlscan.Tokens, ed *sqlscan.Editor, sel *sqlscan.Select, from, to int) bool {
	last := ts.Prev(to)
	if last < from {
		return false
	}
	depth := ts[from].Depth
	prev := ts.Prev(from)
	next := ts.Next(last)
	switch {
	case prev >= 0 && ts[prev].Is("and") && ts[prev].Depth == depth:
		start := prev
		if p := ts.Prev(prev); p >= 0 {
			start = p + 1
		}
		ed.Replace(ts[start].Offset, ts[last].End(), "")
		return true
	case next >= 0 && ts[next].Is("and") && ts[next].Depth == depth:
		end := ts.Next(next)
		if end < 0 {
			return false
		}
		ed.Replace(ts[from].Offset, ts[end].Offset, "")
		return true
	case prev == sel.WhereAt:
		if next >= 0 && next < sel.End && !clauseStart(sel, next) {
			return false
		}
		start := prev
		if p := ts.Prev(prev); p >= 0 {
			start = p + 1
		}
		ed.Replace(ts[start].Offset, ts[last].End(), "")
		return true
	}
	return false
}

func clauseStart(sel *sqlscan.Select, i int) bool {
	return i == sel.ClauseAfterWhere()
}

// comparison is "<column> <op> <literal>" at tokens [start, end).
type comparison struct {
	col        colRef
	op         string
	literalAt  int
	start, end int
}

// comparisonAt reads a comparison whose column reference is col.
func comparisonAt(ts sqlscan.Tokens, col colRef) (comparison, bool) {
	opAt := ts.Next(col.at)
	if opAt < 0 || ts[opAt].Kind != sqlscan.KindOperator {
		return comparison{}, false
	}
	lit := ts.Next(opAt)
	if lit < 0 {
		return comparison{}, false
	}
	switch {
	case ts[lit].Kind == sqlscan.KindString, ts[lit].Kind == sqlscan.KindNumber,
		ts[lit].Is("true"), ts[lit].Is("false"):
	default:
		return comparison{}, false
	}
	return comparison{col: col, op: ts[opAt].Text, literalAt: lit, start: col.start(), end: lit + 1}, true
}

type limitForm int

const (
	formNone limitForm = iota
	formRownum
	formLimit
	formFetch
	formTop
)

// rowLimit describes the outermost row cap of a statement.
type rowLimit struct {
	form  limitForm
	n     int
	inner string
}

// outerRowLimit recognises a ROWNUM wrapper, a trailing LIMIT n, FETCH FIRST n
// ROWS ONLY or SELECT TOP n on the main statement. OFFSET disables recognition.
func outerRowLimit(sql string) (rowLimit, bool) {
	stmt, err := sqlscan.Parse(sql)
	if err != nil || stmt.Main == nil {
		return rowLimit{}, false
	}
	ts, main := stmt.Tokens, stmt.Main
	if main.OffsetAt >= 0 {
		return rowLimit{}, false
	}

	if len(stmt.CTEs) == 0 && len(main.Items) == 1 && main.Items[0].Star && main.Items[0].Qualifier == "" &&
		len(main.From) == 1 && main.From[0].Subquery != nil && main.WhereAt >= 0 && main.SetOpAt < 0 {
		if n, ok := rownumCondition(ts, main); ok {
			open := main.From[0].Start
			closeAt := ts.Match(open)
			if closeAt > open {
				return rowLimit{form: formRownum, n: n, inner: trimSQL(ts.Slice(open+1, closeAt))}, true
			}
		}
	}

	if main.LimitAt >= 0 && ts[main.LimitAt].Depth == 0 {
		numAt := ts.Next(main.LimitAt)
		if numAt >= 0 && ts[numAt].Kind == sqlscan.KindNumber && onlyTerminatorAfter(ts, numAt) {
			if n, err := strconv.Atoi(ts[numAt].Text); err == nil {
				return rowLimit{form: formLimit, n: n, inner: trimSQL(ts.Slice(0, main.LimitAt))}, true
			}
		}
	}

	if main.FetchAt >= 0 && ts[main.FetchAt].Depth == 0 {
		j := ts.Next(main.FetchAt)
		if j >= 0 && (ts[j].Is("first") || ts[j].Is("next")) {
			numAt := ts.Next(j)
			if numAt >= 0 && ts[numAt].Kind == sqlscan.KindNumber {
				rows := ts.Next(numAt)
				if rows >= 0 && (ts[rows].Is("rows") || ts[rows].Is("row")) {
					only := ts.Next(rows)
					if only >= 0 && ts[only].Is("only") && onlyTerminatorAfter(ts, only) {
						if n, err := strconv.Atoi(ts[numAt].Text); err == nil {
							return rowLimit{form: formFetch, n: n, inner: trimSQL(ts.Slice(0, main.FetchAt))}, true
						}
					}
				}
			}
		}
	}

	if top := ts.Next(main.Start); top >= 0 && ts[top].Is("top") {
		numAt := ts.Next(top)
		if numAt >= 0 && ts[numAt].Kind == sqlscan.KindNumber {
			if n, err := strconv.Atoi(ts[numAt].Text); err == nil {
				rest := ts.First(numAt + 1)
				if rest < 0 {
					return rowLimit{}, false
				}
				inner := ts.Slice(0, top) + ts.Slice(rest, len(ts))
				return rowLimit{form: formTop, n: n, inner: trimSQL(inner)}, true
			}
		}
	}
	return rowLimit{}, false
}

func rownumCondition(ts sqlscan.Tokens, sel *sqlscan.Select) (int, bool) {
	r := ts.Next(sel.WhereAt)
	if r < 0 || !ts[r].Is("rownum") {
		return 0, false
	}
	op := ts.Next(r)
	numAt := ts.Next(op)
	if op < 0 || numAt < 0 || ts[numAt].Kind != sqlscan.KindNumber || !onlyTerminatorAfter(ts, numAt) {
		return 0, false
	}
	n, err := strconv.Atoi(ts[numAt].Text)
	if err != nil {
		return 0, false
	}
	switch ts[op].Text {
	case "<=":
		return n, true
	case "<":
		return n - 1, true
	}
	return 0, false
}

func onlyTerminatorAfter(ts sqlscan.Tokens, i int) bool {
	for j := ts.Next(i); j >= 0; j = ts.Next(j) {
		if !ts[j].IsPunct(";") {
			return false
		}
	}
	return true
}

// stripRowLimits removes every stacked outer row cap and returns the caps
// found, outermost first.
func stripRowLimits(sql string) (string, []rowLimit) {
	var found []rowLimit
	for len(found) < 8 {
		lim, ok := outerRowLimit(sql)
		if !ok {
			break
		}
		found = append(found, lim)
		sql = lim.inner
	}
	return sql, found
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// aggregateFuncs are the functions that make a select list aggregate.
var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"median": true, "stddev": true, "variance": true, "percentile_cont": true,
}

// hasAggregate reports whether tokens [from, to) call an aggregate function.
func hasAggregate(ts sqlscan.Tokens, from, to int) bool {
	for i := from; i < to && i < len(ts); i++ {
		if ts[i].Kind == sqlscan.KindIdent && aggregateFuncs[lower(ts[i].Text)] {
			if n := ts.Next(i); n >= 0 && ts[n].IsPunct("(") {
				return true
			}
		}
	}
	return false
}

func lower(s string) string { return strings.ToLower(s) }

// callArgs returns the token range inside the parentheses of the call whose
// name token is at i.
func callArgs(ts sqlscan.Tokens, i int) (int, int, bool) {
	open := ts.Next(i)
	if open < 0 || !ts[open].IsPunct("(") {
		return 0, 0, false
	}
	closeAt := ts.Match(open)
	if closeAt < 0 {
		return 0, 0, false
	}
	return open + 1, closeAt, true
}

// plainColumn reports whether tokens [from, to) are exactly one column
// reference, optionally qualified, and returns its text.
func plainColumn(ts sqlscan.Tokens, from, to int) (string, bool) {
	first := ts.First(from)
	if first < 0 || first >= to || !ts[first].IsName() || sqlscan.IsReserved(ts[first].Text) {
		return "", false
	}
	last := ts.Prev(to)
	switch {
	case last == first:
		return ts[first].Text, true
	case ts.Next(first) >= 0 && ts[ts.Next(first)].IsPunct(".") && ts.Next(ts.Next(first)) == last && ts[last].IsName():
		return ts[first].Text + "." + ts[last].Text, true
	}
	return "", false
}
