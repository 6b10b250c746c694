package sqlscan

import (
	"errors"
	"strings"
)

// ErrNotSelect is returned when a statement does not start with SELECT or WITH.
var ErrNotSelect = errors.New("statement is not a SELECT query")

// Statement is a parsed query: its CTEs and the main SELECT.
type Statement struct {
	SQL    string
	Tokens Tokens
	CTEs   []CTE
	Main   *Select
}

// CTE is one WITH-clause entry.
type CTE struct {
	Name string
	// Open and Close are the token indexes of the parentheses around the body.
	Open, Close int
	Body        *Select
}

// Select is a single SELECT block. All positions are token indexes into the
// owning statement's token stream.
type Select struct {
	Start    int // index of the SELECT keyword
	End      int // index just past the last token of the block
	Depth    int
	Distinct bool
	Items    []SelectItem
	From     []TableRef
	// FromAt is the index of FROM, or -1. FromEnd is the index just past the FROM list.
	FromAt, FromEnd int
	WhereAt         int
	GroupAt         int
	HavingAt        int
	OrderAt         int
	LimitAt         int
	FetchAt         int
	OffsetAt        int
	ForAt           int
	SetOpAt         int // first top-level UNION/INTERSECT/EXCEPT/MINUS, or -1
}

// SelectItem is one entry of a select list.
type SelectItem struct {
	Start, End int // token range of the whole item, including any alias
	ExprEnd    int // end of the expression (before AS/alias)
	Alias      string
	Name       string // output column name: alias or the trailing column identifier
	Star       bool
	Qualifier  string // for "x.*" and "x.col"
}

// TableRef is one FROM item.
type TableRef struct {
	Name     string // lower-cased table name without schema, empty for subqueries
	Schema   string
	Alias    string
	Subquery *Select
	Start    int
	End      int // index just past the item (before ON/USING)
	NameAt   int // token index of the table name (last part)
	Join     string
}

// Ref returns the name the item is referenced by in the query (alias or table name).
func (r TableRef) Ref() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

// Parse tokenizes sql and parses its top-level structure.
func Parse(sql string) (*Statement, error) {
	tokens, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	stmt := &Statement{SQL: sql, Tokens: tokens}
	first := tokens.First(0)
	for first >= 0 && tokens[first].IsPunct("(") {
		first = tokens.Next(first)
	}
	if first < 0 {
		return nil, ErrNotSelect
	}
	i := first
	if tokens[i].Is("with") {
		next, ctes, ok := parseCTEs(tokens, i)
		if !ok {
			return nil, ErrNotSelect
		}
		stmt.CTEs = ctes
		i = next
	}
	for i >= 0 && tokens[i].IsPunct("(") {
		i = tokens.Next(i)
	}
	if i < 0 || !tokens[i].Is("select") {
		return nil, ErrNotSelect
	}
	stmt.Main = ParseSelect(tokens, i)
	return stmt, nil
}

// parseCTEs parses "WITH [RECURSIVE] a AS (...), b (cols) AS (...)" starting at the
// WITH token and returns the index of the token after the CTE list.
func parseCTEs(ts Tokens, at int) (int, []CTE, bool) {
	var ctes []CTE
	i := ts.Next(at)
	if i >= 0 && ts[i].Is("recursive") {
		i = ts.Next(i)
	}
	for i >= 0 {
		if !ts[i].IsName() {
			return -1, nil, false
		}
		cte := CTE{Name: ts[i].Name()}
		i = ts.Next(i)
		if i >= 0 && ts[i].IsPunct("(") {
			i = ts.Next(ts.Match(i))
		}
		if i < 0 || !ts[i].Is("as") {
			return -1, nil, false
		}
		i = ts.Next(i)
		if i >= 0 && (ts[i].Is("materialized") || ts[i].Is("not")) {
			for i >= 0 && !ts[i].IsPunct("(") {
				i = ts.Next(i)
			}
		}
		if i < 0 || !ts[i].IsPunct("(") {
			return -1, nil, false
		}
		cte.Open = i
		cte.Close = ts.Match(i)
		if cte.Close < 0 {
			return -1, nil, false
		}
		if s := ts.First(cte.Open + 1); s >= 0 && ts[s].Is("select") {
			cte.Body = ParseSelect(ts, s)
		}
		ctes = append(ctes, cte)
		i = ts.Next(cte.Close)
		if i >= 0 && ts[i].IsPunct(",") {
			i = ts.Next(i)
			continue
		}
		return i, ctes, true
	}
	return -1, nil, false
}

// ParseSelect parses the SELECT block whose SELECT keyword is at index at.
func ParseSelect(ts Tokens, at int) *Select {
	depth := ts[at].Depth
	sel := &Select{
		Start: at, Depth: depth, FromAt: -1, FromEnd: -1, WhereAt: -1, GroupAt: -1,
		HavingAt: -1, OrderAt: -1, LimitAt: -1, FetchAt: -1, OffsetAt: -1, ForAt: -1, SetOpAt: -1,
	}

	end := len(ts)
	for j := at + 1; j < len(ts); j++ {
		t := ts[j]
		if t.Depth < depth {
			end = j
			break
		}
		if t.Depth != depth || t.Kind != KindIdent {
			if t.IsPunct(";") && t.Depth == depth {
				end = j
				break
			}
			continue
		}
		switch strings.ToLower(t.Text) {
		case "from":
			if sel.FromAt < 0 && sel.SetOpAt < 0 {
				sel.FromAt = j
			}
		case "where":
			if sel.WhereAt < 0 && sel.SetOpAt < 0 {
				sel.WhereAt = j
			}
		case "group":
			if _, ok := ts.IsSequence(j, "group", "by"); ok && sel.GroupAt < 0 && sel.SetOpAt < 0 {
				sel.GroupAt = j
			}
		case "having":
			if sel.HavingAt < 0 && sel.SetOpAt < 0 {
				sel.HavingAt = j
			}
		case "order":
			if _, ok := ts.IsSequence(j, "order", "by"); ok {
				sel.OrderAt = j
			}
		case "limit":
			sel.LimitAt = j
		case "fetch":
			sel.FetchAt = j
		case "offset":
			sel.OffsetAt = j
		case "for":
			if n := ts.Next(j); n >= 0 && (ts[n].Is("update") || ts[n].Is("share")) {
				sel.ForAt = j
			}
		case "union", "intersect", "except", "minus":
			if sel.SetOpAt < 0 {
				sel.SetOpAt = j
			}
		}
	}
	sel.End = end

	if n := ts.Next(at); n >= 0 && n < end {
		if ts[n].Is("distinct") {
			sel.Distinct = true
		}
	}

	itemsEnd := firstOf(end, sel.FromAt, sel.SetOpAt)
	sel.Items = parseItems(ts, at, itemsEnd, depth)
	if sel.FromAt >= 0 {
		sel.FromEnd = firstOf(end, sel.WhereAt, sel.GroupAt, sel.HavingAt, sel.OrderAt,
			sel.LimitAt, sel.FetchAt, sel.OffsetAt, sel.ForAt, sel.SetOpAt)
		sel.From = parseFrom(ts, sel.FromAt, sel.FromEnd, depth)
	}
	return sel
}

func firstOf(def int, idx ...int) int {
	best := def
	for _, i := range idx {
		if i >= 0 && i < best {
			best = i
		}
	}
	return best
}

// ClauseAfterWhere returns the index of the first clause that follows the WHERE
// condition (GROUP BY, HAVING, ORDER BY, ...), or End.
func (s *Select) ClauseAfterWhere() int {
	return firstOf(s.End, s.GroupAt, s.HavingAt, s.OrderAt, s.LimitAt, s.FetchAt,
		s.OffsetAt, s.ForAt, s.SetOpAt)
}

// HasLimit reports whether the block has a LIMIT or FETCH clause.
func (s *Select) HasLimit() bool {
	return s.LimitAt >= 0 || s.FetchAt >= 0
}

// Table returns the FROM item referenced by ref (alias or table name).
func (s *Select) Table(ref string) (TableRef, bool) {
	ref = strings.ToLower(ref)
	for _, t := range s.From {
		if t.Ref() == ref || (t.Alias == "" && t.Name == ref) {
			return t, true
		}
	}
	return TableRef{}, false
}

// HasTable reports whether the FROM list references the base table name.
func (s *Select) HasTable(name string) bool {
	name = strings.ToLower(name)
	for _, t := range s.From {
		if t.Name == name {
			return true
		}
	}
	return false
}

func parseItems(ts Tokens, selectAt, end, depth int) []SelectItem {
	start := ts.Next(selectAt)
	for start >= 0 && start < end && (ts[start].Is("distinct") || ts[start].Is("all")) {
		start = ts.Next(start)
	}
	if start >= 0 && start < end && ts[start].Is("top") {
		start = ts.Next(ts.Next(start))
	}
	if start < 0 || start >= end {
		return nil
	}
	var items []SelectItem
	itemStart := start
	for j := start; j <= end; j++ {
		if j == end || (ts[j].IsPunct(",") && ts[j].Depth == depth) {
			if item, ok := parseItem(ts, itemStart, j); ok {
				items = append(items, item)
			}
			itemStart = j + 1
		}
	}
	return items
}

func parseItem(ts Tokens, from, to int) (SelectItem, bool) {
	first := ts.First(from)
	if first < 0 || first >= to {
		return SelectItem{}, false
	}
	last := ts.Prev(to)
	if last < first {
		return SelectItem{}, false
	}
	item := SelectItem{Start: first, End: last + 1, ExprEnd: last + 1}

	if ts[last].Kind == KindOperator && ts[last].Text == "*" {
		item.Star = true
		if p := ts.Prev(last); p >= first && ts[p].IsPunct(".") {
			if q := ts.Prev(p); q >= first {
				item.Qualifier = ts[q].Name()
			}
		}
		return item, true
	}

	if ts[last].IsName() && last > first {
		prev := ts.Prev(last)
		switch {
		case ts[prev].Is("as"):
			item.Alias = ts[last].Name()
			item.ExprEnd = prev
		case !ts[prev].IsPunct(".") && !IsReserved(ts[last].Text) &&
			(ts[prev].IsPunct(")") || ts[prev].IsName() || ts[prev].Kind == KindNumber || ts[prev].Kind == KindString):
			if !(ts[prev].Kind == KindIdent && IsReserved(ts[prev].Text) && !ts[prev].Is("end")) {
				item.Alias = ts[last].Name()
				item.ExprEnd = prev
			}
		}
	}
	if item.Alias != "" {
		item.Name = item.Alias
		return item, true
	}

	// Bare column or qualified column.
	exprLast := ts.Prev(item.ExprEnd)
	if exprLast >= first && ts[exprLast].IsName() {
		p := ts.Prev(exprLast)
		switch {
		case exprLast == first:
			item.Name = ts[exprLast].Name()
		case p >= first && ts[p].IsPunct("."):
			if q := ts.Prev(p); q == first {
				item.Qualifier = ts[q].Name()
				item.Name = ts[exprLast].Name()
			}
		}
	}
	return item, true
}

var joinWords = map[string]bool{
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"outer": true, "cross": true, "natural": true, "lateral": true,
}

func parseFrom(ts Tokens, fromAt, end, depth int) []TableRef {
	var refs []TableRef
	i := ts.Next(fromAt)
	join := ""
	for i >= 0 && i < end {
		t := ts[i]
		switch {
		case t.IsPunct(",") && t.Depth == depth:
			join = ","
			i = ts.Next(i)
			continue
		case t.Kind == KindIdent && joinWords[strings.ToLower(t.Text)]:
			var words []string
			for i >= 0 && i < end && ts[i].Kind == KindIdent && joinWords[strings.ToLower(ts[i].Text)] {
				words = append(words, strings.ToLower(ts[i].Text))
				i = ts.Next(i)
			}
			join = strings.Join(words, " ")
			continue
		case t.Is("on") || t.Is("using"):
			i = skipCondition(ts, i, end, depth)
			continue
		}

		ref, next := parseTableRef(ts, i, end, depth)
		ref.Join = join
		if ref.Name != "" || ref.Subquery != nil {
			refs = append(refs, ref)
		}
		if next <= i {
			next = ts.Next(i)
		}
		i = next
	}
	return refs
}

func skipCondition(ts Tokens, at, end, depth int) int {
	for j := ts.Next(at); j >= 0 && j < end; j = ts.Next(j) {
		t := ts[j]
		if t.Depth != depth {
			continue
		}
		if t.IsPunct(",") {
			return j
		}
		if t.Kind == KindIdent && joinWords[strings.ToLower(t.Text)] {
			return j
		}
	}
	return end
}

func parseTableRef(ts Tokens, at, end, depth int) (TableRef, int) {
	ref := TableRef{Start: at, NameAt: -1}
	i := at
	if ts[i].IsPunct("(") {
		closeAt := ts.Match(i)
		if closeAt < 0 {
			return ref, end
		}
		if s := ts.First(i + 1); s >= 0 && ts[s].Is("select") {
			ref.Subquery = ParseSelect(ts, s)
		} else if s >= 0 && ts[s].Is("with") {
			if stmtStart, _, ok := parseCTEs(ts, s); ok && stmtStart >= 0 && ts[stmtStart].Is("select") {
				ref.Subquery = ParseSelect(ts, stmtStart)
			}
		}
		i = ts.Next(closeAt)
		ref.End = closeAt + 1
	} else if ts[i].IsName() {
		ref.Name = ts[i].Name()
		ref.NameAt = i
		ref.End = i + 1
		for {
			dot := ts.Next(ref.NameAt)
			if dot < 0 || dot >= end || !ts[dot].IsPunct(".") {
				break
			}
			part := ts.Next(dot)
			if part < 0 || !ts[part].IsName() {
				break
			}
			ref.Schema = ref.Name
			ref.Name = ts[part].Name()
			ref.NameAt = part
			ref.End = part + 1
		}
		i = ts.Next(ref.NameAt)
	} else {
		return ref, ts.Next(at)
	}

	if i >= 0 && i < end && ts[i].Is("as") {
		i = ts.Next(i)
	}
	if i >= 0 && i < end && ts[i].IsName() && !IsReserved(ts[i].Text) && ts[i].Depth == depth {
		ref.Alias = ts[i].Name()
		ref.End = i + 1
		i = ts.Next(i)
	}
	if i < 0 {
		i = end
	}
	return ref, i
}

// Selects returns every SELECT block in the token stream, outermost first.
func (st *Statement) Selects() []*Select {
	var out []*Select
	for i, t := range st.Tokens {
		if t.Is("select") {
			out = append(out, ParseSelect(st.Tokens, i))
		}
	}
	return out
}

// CTE returns the CTE with the given name.
func (st *Statement) CTE(name string) (CTE, bool) {
	name = strings.ToLower(name)
	for _, c := range st.CTEs {
		if c.Name == name {
			return c, true
		}
	}
	return CTE{}, false
}
