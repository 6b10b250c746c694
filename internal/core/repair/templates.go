package repair

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// Templates applies deterministic repairs for the error kinds that have one.
type Templates struct {
	cat     *catalog.Catalog
	dialect dialect.Dialect
	logger  *zap.Logger
	// maxDistance bounds edit distance for close-name suggestions.
	maxDistance int
}

// Option configures Templates.
type Option func(*Templates)

// WithDialect overrides the catalog's dialect.
func WithDialect(d dialect.Dialect) Option {
	return func(t *Templates) { t.dialect = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Templates) { t.logger = l }
}

// WithMaxDistance sets the edit distance allowed for close-name suggestions.
func WithMaxDistance(n int) Option {
	return func(t *Templates) { t.maxDistance = n }
}

// New returns template repairs bound to cat.
func New(cat *catalog.Catalog, opts ...Option) *Templates {
	t := &Templates{cat: cat, dialect: cat.Dialect(), logger: zap.NewNop(), maxDistance: 2}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Supports reports whether kind has a template repair.
func Supports(kind Kind) bool {
	switch kind {
	case KindUnknownColumn, KindInvalidIdentifier, KindUnknownTable, KindAmbiguousColumn,
		KindDivideByZero, KindSyntax, KindGroupBy:
		return true
	}
	return false
}

// Repair returns sql rewritten to avoid e, and true, or sql and false when no
// template applies.
func (t *Templates) Repair(e *DBError, sql string) (string, bool) {
	if e == nil {
		return sql, false
	}
	var (
		out string
		ok  bool
	)
	switch e.Kind {
	case KindUnknownColumn, KindInvalidIdentifier:
		out, ok = t.unknownColumn(e, sql)
	case KindUnknownTable:
		out, ok = t.unknownTable(e, sql)
	case KindAmbiguousColumn:
		out, ok = t.ambiguousColumn(e, sql)
	case KindDivideByZero:
		out, ok = divideByZero(sql)
	case KindSyntax:
		out, ok = t.syntax(sql)
	case KindGroupBy:
		out, ok = groupBy(sql)
	}
	if !ok || out == sql {
		return sql, false
	}
	t.logger.Debug("template repair applied", zap.String("kind", string(e.Kind)), zap.String("identifier", e.Identifier))
	return out, true
}

// occurrence is one reference to a column inside a SELECT block.
type occurrence struct {
	at, qualAt int
	sel        *sqlscan.Select
	tables     map[string]string // ref -> catalog table
	order      []string          // refs in FROM order
}

func (t *Templates) occurrences(st *sqlscan.Statement, column string) []occurrence {
	ts := st.Tokens
	selects := st.Selects()
	fromTokens := make(map[int]bool)
	for _, sel := range selects {
		for _, ref := range sel.From {
			if ref.Subquery != nil {
				continue
			}
			for i := ref.Start; i < ref.End; i++ {
				fromTokens[i] = true
			}
		}
	}
	var out []occurrence
	for i, tok := range ts {
		if !tok.IsName() || tok.Name() != column || fromTokens[i] {
			continue
		}
		if n := ts.Next(i); n >= 0 && (ts[n].IsPunct("(") || ts[n].IsPunct(".")) {
			continue
		}
		p := ts.Prev(i)
		if p >= 0 && ts[p].Is("as") {
			continue
		}
		occ := occurrence{at: i, qualAt: -1}
		if p >= 0 && ts[p].IsPunct(".") {
			occ.qualAt = ts.Prev(p)
			if occ.qualAt < 0 {
				continue
			}
		}
		for _, sel := range selects {
			if sel.Start <= i && i < sel.End && (occ.sel == nil || sel.Start > occ.sel.Start) {
				occ.sel = sel
			}
		}
		if occ.sel == nil {
			continue
		}
		occ.tables = make(map[string]string)
		for _, ref := range occ.sel.From {
			if ref.Subquery != nil || !t.cat.HasTable(ref.Name) {
				continue
			}
			if _, isCTE := st.CTE(ref.Name); isCTE && ref.Schema == "" {
				continue
			}
			occ.tables[ref.Ref()] = ref.Name
			occ.order = append(occ.order, ref.Ref())
		}
		out = append(out, occ)
	}
	return out
}

func (t *Templates) unknownColumn(e *DBError, sql string) (string, bool) {
	st, err := sqlscan.Parse(sql)
	if err != nil {
		return sql, false
	}
	ts := st.Tokens
	col, qual := e.Column(), e.Qualifier()
	ed := sqlscan.NewEditor(sql)
	for _, occ := range t.occurrences(st, col) {
		candidates := occ.order
		if occ.qualAt >= 0 {
			q := ts[occ.qualAt].Name()
			if qual != "" && q != qual {
				continue
			}
			if _, ok := occ.tables[q]; !ok {
				continue
			}
			candidates = []string{q}
		} else if qual != "" {
			continue
		}
		if anyHas(t.cat, occ.tables, candidates, col) {
			continue
		}
		// Configured renames first.
		if to, ok := t.renamed(occ.tables, candidates, col); ok {
			ed.ReplaceTokens(ts, occ.at, occ.at+1, to)
			continue
		}
		// The column exists on another table of the same block.
		if occ.qualAt >= 0 {
			if ref, ok := firstWith(t.cat, occ.tables, occ.order, col); ok {
				ed.ReplaceTokens(ts, occ.qualAt, occ.qualAt+1, ref)
				continue
			}
		}
		if to, ok := t.closestColumn(occ.tables, candidates, col); ok {
			ed.ReplaceTokens(ts, occ.at, occ.at+1, to)
		}
	}
	return ed.String(), ed.Changed()
}

func (t *Templates) renamed(tables map[string]string, refs []string, col string) (string, bool) {
	for _, r := range refs {
		if to, ok := t.cat.RenameColumn(tables[r], col); ok && t.cat.HasColumn(tables[r], to).Exists {
			return to, true
		}
	}
	return "", false
}

func (t *Templates) closestColumn(tables map[string]string, refs []string, col string) (string, bool) {
	best, bestDist := "", t.maxDistance+1
	for _, r := range refs {
		for _, c := range t.cat.Columns(tables[r]) {
			d := fuzzy.LevenshteinDistance(col, c)
			if d < bestDist || (d == bestDist && c < best) {
				best, bestDist = c, d
			}
		}
	}
	return best, best != ""
}

func anyHas(cat *catalog.Catalog, tables map[string]string, refs []string, col string) bool {
	for _, r := range refs {
		if cat.HasColumn(tables[r], col).Exists {
			return true
		}
	}
	return false
}

func firstWith(cat *catalog.Catalog, tables map[string]string, refs []string, col string) (string, bool) {
	for _, r := range refs {
		if cat.HasColumn(tables[r], col).Exists {
			return r, true
		}
	}
	return "", false
}

func (t *Templates) unknownTable(e *DBError, sql string) (string, bool) {
	st, err := sqlscan.Parse(sql)
	if err != nil {
		return sql, false
	}
	// Oracle does not name the missing table; every unknown FROM table is a suspect.
	name := e.Column()
	ed := sqlscan.NewEditor(sql)
	for _, sel := range st.Selects() {
		for _, ref := range sel.From {
			if ref.Subquery != nil || ref.Name == "" || t.cat.HasTable(ref.Name) {
				continue
			}
			if name != "" && ref.Name != name {
				continue
			}
			if _, isCTE := st.CTE(ref.Name); isCTE && ref.Schema == "" {
				continue
			}
			to, ok := t.cat.RenameTable(ref.Name)
			if !ok || !t.cat.HasTable(to) {
				to, ok = t.closestTable(ref.Name)
			}
			if !ok {
				continue
			}
			text := to
			if ref.Alias == "" {
				// Keep the old name as the alias so qualified columns still resolve.
				text = to + " " + st.Tokens[ref.NameAt].Text
			}
			ed.ReplaceTokens(st.Tokens, ref.NameAt, ref.NameAt+1, text)
		}
	}
	return ed.String(), ed.Changed()
}

func (t *Templates) closestTable(name string) (string, bool) {
	tables := t.cat.Tables()
	ranks := fuzzy.RankFindNormalizedFold(name, tables)
	sort.Sort(ranks)
	if len(ranks) > 0 {
		return ranks[0].Target, true
	}
	best, bestDist := "", t.maxDistance+1
	for _, tbl := range tables {
		if d := fuzzy.LevenshteinDistance(name, tbl); d < bestDist || (d == bestDist && tbl < best) {
			best, bestDist = tbl, d
		}
	}
	return best, best != ""
}

func (t *Templates) ambiguousColumn(e *DBError, sql string) (string, bool) {
	st, err := sqlscan.Parse(sql)
	if err != nil {
		return sql, false
	}
	ed := sqlscan.NewEditor(sql)
	for _, occ := range t.occurrences(st, e.Column()) {
		if occ.qualAt >= 0 || len(occ.sel.From) < 2 {
			continue
		}
		if ref, ok := firstWith(t.cat, occ.tables, occ.order, e.Column()); ok {
			ed.Insert(st.Tokens[occ.at].Offset, ref+".")
		}
	}
	return ed.String(), ed.Changed()
}

// divideByZero wraps every non-literal divisor in NULLIF(x, 0).
func divideByZero(sql string) (string, bool) {
	ts, err := sqlscan.Tokenize(sql)
	if err != nil {
		return sql, false
	}
	ed := sqlscan.NewEditor(sql)
	for i, tok := range ts {
		if tok.Kind != sqlscan.KindOperator || tok.Text != "/" {
			continue
		}
		from := ts.Next(i)
		if from < 0 || ts[from].Kind == sqlscan.KindNumber || ts[from].Is("nullif") {
			continue
		}
		to := operandEnd(ts, from)
		if to < 0 {
			continue
		}
		ed.ReplaceTokens(ts, from, to+1, "NULLIF("+ts.Slice(from, to+1)+", 0)")
	}
	return ed.String(), ed.Changed()
}

// operandEnd returns the last token of the primary expression starting at i:
// a parenthesised group, a function call or a possibly qualified name.
func operandEnd(ts sqlscan.Tokens, i int) int {
	if ts[i].IsPunct("(") {
		return ts.Match(i)
	}
	if !ts[i].IsName() {
		return -1
	}
	end := i
	for {
		n := ts.Next(end)
		switch {
		case n >= 0 && ts[n].IsPunct("("):
			return ts.Match(n)
		case n >= 0 && ts[n].IsPunct("."):
			m := ts.Next(n)
			if m < 0 || !ts[m].IsName() {
				return end
			}
			end = m
		default:
			return end
		}
	}
}

var (
	fenceRe    = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n?(.*?)\\s*```\\s*$")
	trailLimit = regexp.MustCompile(`(?is)^(.*\S)\s+LIMIT\s+(\d+)\s*$`)
)

// syntax strips fences and terminators and converts a trailing LIMIT for
// dialects without one.
func (t *Templates) syntax(sql string) (string, bool) {
	out := sql
	if m := fenceRe.FindStringSubmatch(out); m != nil {
		out = m[1]
	}
	out = strings.TrimSpace(out)
	for strings.HasSuffix(out, ";") {
		out = strings.TrimSpace(strings.TrimSuffix(out, ";"))
	}
	if t.dialect.UsesRownum() {
		if m := trailLimit.FindStringSubmatch(out); m != nil {
			n, _ := strconv.Atoi(m[2])
			out = t.dialect.LimitRows(m[1], n)
		}
	}
	return out, out != sql
}

// groupBy adds non-aggregated select items missing from GROUP BY.
func groupBy(sql string) (string, bool) {
	st, err := sqlscan.Parse(sql)
	if err != nil {
		return sql, false
	}
	ts := st.Tokens
	ed := sqlscan.NewEditor(sql)
	for _, sel := range st.Selects() {
		var plain []string
		aggregate := false
		for _, item := range sel.Items {
			if item.Star {
				continue
			}
			if hasAggregateCall(ts, item.Start, item.ExprEnd) {
				aggregate = true
				continue
			}
			if expr := strings.TrimSpace(ts.Slice(item.Start, item.ExprEnd)); expr != "" {
				if first := ts.First(item.Start); first >= 0 && ts[first].Kind != sqlscan.KindString &&
					ts[first].Kind != sqlscan.KindNumber {
					plain = append(plain, expr)
				}
			}
		}
		if !aggregate || len(plain) == 0 {
			continue
		}
		if sel.GroupAt < 0 {
			at := firstClause(sel.End, sel.HavingAt, sel.OrderAt, sel.LimitAt, sel.FetchAt, sel.OffsetAt, sel.ForAt, sel.SetOpAt)
			text := "GROUP BY " + strings.Join(plain, ", ")
			if at == sel.End {
				ed.Insert(ts[ts.Prev(at)].End(), "\n"+text)
			} else {
				ed.Insert(ts[at].Offset, text+"\n")
			}
			continue
		}
		groupEnd := firstClause(sel.End, sel.HavingAt, sel.OrderAt, sel.LimitAt, sel.FetchAt, sel.OffsetAt, sel.ForAt, sel.SetOpAt)
		have := strings.ReplaceAll(ts.Compact(ts.Next(sel.GroupAt)+1, groupEnd), " ", "")
		var missing []string
		for _, p := range plain {
			key := strings.ToLower(strings.ReplaceAll(p, " ", ""))
			if !containsTerm(have, key) {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			last := ts.Prev(groupEnd)
			ed.Insert(ts[last].End(), ", "+strings.Join(missing, ", "))
		}
	}
	return ed.String(), ed.Changed()
}

func containsTerm(list, term string) bool {
	for _, t := range strings.Split(list, ",") {
		if t == term {
			return true
		}
	}
	return false
}

func firstClause(def int, idx ...int) int {
	best := def
	for _, i := range idx {
		if i >= 0 && i < best {
			best = i
		}
	}
	return best
}

var aggregates = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"median": true, "stddev": true, "variance": true, "listagg": true, "string_agg": true,
}

func hasAggregateCall(ts sqlscan.Tokens, from, to int) bool {
	for i := from; i < to && i < len(ts); i++ {
		if ts[i].Kind == sqlscan.KindIdent && aggregates[strings.ToLower(ts[i].Text)] {
			if n := ts.Next(i); n >= 0 && ts[n].IsPunct("(") {
				return true
			}
		}
	}
	return false
}
