package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// countAlias gives unaliased COUNT items a stable alias and points matching
// ORDER BY expressions at it.
type countAlias struct{}

func (countAlias) Name() string       { return "count_alias" }
func (countAlias) Category() Category { return CategoryAggregate }
func (countAlias) Risk() Risk         { return RiskLow }

func (countAlias) Apply(sql string, _ *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	ed := sqlscan.NewEditor(sql)
	for _, sel := range q.selects {
		taken := make(map[string]bool)
		for _, item := range sel.Items {
			if item.Name != "" {
				taken[item.Name] = true
			}
		}
		for _, item := range sel.Items {
			if item.Alias != "" || item.Star {
				continue
			}
			first := ts.First(item.Start)
			if first < 0 || !ts[first].Is("count") {
				continue
			}
			_, argTo, ok := callArgs(ts, first)
			if !ok || argTo+1 != item.ExprEnd {
				continue
			}
			alias := "cnt"
			for n := 2; taken[alias]; n++ {
				alias = fmt.Sprintf("cnt%d", n)
			}
			taken[alias] = true
			ed.Insert(ts[argTo].End(), " AS "+alias)

			if sel.OrderAt < 0 {
				continue
			}
			expr := ts.Compact(first, argTo+1)
			for i := sel.OrderAt; i < sel.End; i++ {
				if !ts[i].Is("count") || ts[i].Depth != sel.Depth {
					continue
				}
				if _, to, ok := callArgs(ts, i); ok && ts.Compact(i, to+1) == expr {
					ed.ReplaceTokens(ts, i, to+1, alias)
				}
			}
		}
	}
	return ed.String(), ed.Changed()
}

// nonNullTargets filters NULLs out of GROUP BY columns and AVG/COUNT targets.
type nonNullTargets struct{}

func (nonNullTargets) Name() string       { return "non_null_targets" }
func (nonNullTargets) Category() Category { return CategoryAggregate }
func (nonNullTargets) Risk() Risk         { return RiskHigh }

func (nonNullTargets) Apply(sql string, _ *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	ed := sqlscan.NewEditor(sql)
	for _, sel := range q.selects {
		if sel.GroupAt < 0 {
			continue
		}
		var targets []string
		add := func(col string) {
			name := lower(col[strings.LastIndex(col, ".")+1:])
			if q.aliases[name] && !strings.Contains(col, ".") {
				return
			}
			for _, t := range targets {
				if strings.EqualFold(t, col) {
					return
				}
			}
			targets = append(targets, col)
		}

		by := ts.Next(sel.GroupAt)
		groupEnd := firstOf(sel.End, sel.HavingAt, sel.OrderAt, sel.LimitAt, sel.FetchAt, sel.OffsetAt, sel.ForAt, sel.SetOpAt)
		start := by + 1
		for j := start; j <= groupEnd; j++ {
			if j == groupEnd || (ts[j].IsPunct(",") && ts[j].Depth == sel.Depth) {
				if col, ok := plainColumn(ts, start, j); ok {
					add(col)
				}
				start = j + 1
			}
		}
		itemsEnd := firstOf(sel.End, sel.FromAt, sel.SetOpAt)
		for i := sel.Start; i < itemsEnd; i++ {
			if !ts[i].Is("avg") && !ts[i].Is("count") {
				continue
			}
			if from, to, ok := callArgs(ts, i); ok {
				if col, ok := plainColumn(ts, from, to); ok {
					add(col)
				}
			}
		}

		var missing []string
		whereText := ""
		if from, to, ok := whereRange(sel); ok {
			whereText = strings.ReplaceAll(ts.Compact(from, to), " ", "")
		}
		for _, t := range targets {
			if !strings.Contains(whereText, strings.ToLower(t)+"isnotnull") {
				missing = append(missing, t+" IS NOT NULL")
			}
		}
		if len(missing) == 0 {
			continue
		}
		preds := strings.Join(missing, " AND ")
		if from, to, ok := whereRange(sel); ok {
			first, last := ts.First(from), ts.Prev(to)
			if first < 0 || last < first {
				continue
			}
			ed.Replace(ts[first].Offset, ts[last].End(), preds+" AND ("+ts.Slice(first, last+1)+")")
		} else {
			ed.Insert(ts[sel.GroupAt].Offset, "WHERE "+preds+"\n")
		}
	}
	return ed.String(), ed.Changed()
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

// ratioDenominator counts distinct admissions instead of rows in a ratio's
// denominator when a one-to-many join would inflate the row count.
type ratioDenominator struct{}

func (ratioDenominator) Name() string       { return "ratio_denominator" }
func (ratioDenominator) Category() Category { return CategoryAggregate }
func (ratioDenominator) Risk() Risk         { return RiskHigh }

func (ratioDenominator) Apply(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	cat := rc.Catalog
	ed := sqlscan.NewEditor(sql)
	for i, t := range ts {
		if t.Kind != sqlscan.KindOperator || t.Text != "/" {
			continue
		}
		j := ts.Next(i)
		if j >= 0 && ts[j].Is("nullif") {
			if open := ts.Next(j); open >= 0 && ts[open].IsPunct("(") {
				j = ts.Next(open)
			}
		}
		if j < 0 || !ts[j].Is("count") {
			continue
		}
		from, to, ok := callArgs(ts, j)
		if !ok || ts.Compact(from, to) != "*" {
			continue
		}
		sel := q.innermost(j)
		if sel == nil || len(sel.From) < 2 {
			continue
		}
		ref, ok := admissionRef(q, sel, cat)
		if !ok {
			continue
		}
		ed.ReplaceTokens(ts, j, to+1, fmt.Sprintf("COUNT(DISTINCT %s.%s)", ref, catalog.HadmID))
	}
	return ed.String(), ed.Changed()
}

// admissionRef returns the reference of the table in sel that identifies
// admissions, provided sel also joins a one-to-many table.
func admissionRef(q *query, sel *sqlscan.Select, cat *catalog.Catalog) (string, bool) {
	tables := q.tables(sel, cat)
	fanout := false
	for _, t := range tables {
		if cat.IsOneToMany(t) {
			fanout = true
		}
	}
	if !fanout {
		return "", false
	}
	refs := make([]string, 0, len(tables))
	for r := range tables {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	adm := cat.Source(catalog.RoleAdmissions)
	for _, r := range refs {
		if tables[r] == adm && cat.HasColumn(adm, catalog.HadmID).Exists {
			return r, true
		}
	}
	for _, r := range refs {
		if !cat.IsOneToMany(tables[r]) && cat.HasColumn(tables[r], catalog.HadmID).Exists {
			return r, true
		}
	}
	for _, r := range refs {
		if cat.HasColumn(tables[r], catalog.HadmID).Exists {
			return r, true
		}
	}
	return "", false
}

// deathTimeAlignment replaces a hospital-expiry flag with the death-time
// predicate the rest of the query compares against.
type deathTimeAlignment struct{}

func (deathTimeAlignment) Name() string       { return "death_time_alignment" }
func (deathTimeAlignment) Category() Category { return CategoryAggregate }
func (deathTimeAlignment) Risk() Risk         { return RiskHigh }

const expireFlag = "hospital_expire_flag"

func (deathTimeAlignment) Apply(sql string, rc *Context) (string, bool) {
	if !rc.Hints.Mortality {
		return sql, false
	}
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	cat := rc.Catalog
	timed := ts.ContainsWord("deathtime") || ts.ContainsWord("dod")
	stays := cat.Source(catalog.RoleStays)

	ed := sqlscan.NewEditor(sql)
	for _, col := range q.columns(0, len(ts)) {
		if col.name != expireFlag {
			continue
		}
		cmp, ok := comparisonAt(ts, col)
		if !ok || cmp.op != "=" || ts[cmp.literalAt].Text != "1" {
			continue
		}
		sel := q.innermost(col.at)
		if sel == nil {
			continue
		}
		tables := q.tables(sel, cat)
		admRef := col.qualifier
		if admRef == "" {
			for _, r := range sortedKeys(tables) {
				if cat.HasColumn(tables[r], "deathtime").Exists {
					admRef = r
					break
				}
			}
		}
		if admRef == "" || !cat.HasColumn(tables[admRef], "deathtime").Exists {
			continue
		}
		icuRef := ""
		for _, r := range sortedKeys(tables) {
			if tables[r] == stays && cat.HasColumn(stays, "intime").Exists && cat.HasColumn(stays, "outtime").Exists {
				icuRef = r
				break
			}
		}
		var pred string
		switch {
		case rc.Hints.ICU && icuRef != "":
			pred = fmt.Sprintf("%s.deathtime BETWEEN %s.intime AND %s.outtime", admRef, icuRef, icuRef)
		case timed:
			pred = fmt.Sprintf("%s.deathtime IS NOT NULL", admRef)
		default:
			continue
		}
		ed.ReplaceTokens(ts, cmp.start, cmp.end, pred)
	}
	return ed.String(), ed.Changed()
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
