package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// renameIdentifiers maps commonly mistaken table and column names to the
// catalog's real names.
type renameIdentifiers struct{}

func (renameIdentifiers) Name() string       { return "rename_identifiers" }
func (renameIdentifiers) Category() Category { return CategorySchema }
func (renameIdentifiers) Risk() Risk         { return RiskLow }

func (renameIdentifiers) Apply(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	cat := rc.Catalog
	ed := sqlscan.NewEditor(sql)

	// Table names first; refs maps each select's references to the real table.
	refs := make(map[*sqlscan.Select]map[string]string, len(q.selects))
	for _, sel := range q.selects {
		m := make(map[string]string)
		for _, ref := range sel.From {
			if ref.Subquery != nil || ref.Name == "" {
				continue
			}
			if _, isCTE := q.stmt.CTE(ref.Name); isCTE && ref.Schema == "" {
				continue
			}
			table := ref.Name
			if !cat.HasTable(table) {
				to, found := cat.RenameTable(table)
				if !found || !cat.HasTable(to) {
					continue
				}
				text := to
				if ref.Alias == "" {
					text = to + " " + q.ts[ref.NameAt].Text
				}
				ed.ReplaceTokens(q.ts, ref.NameAt, ref.NameAt+1, text)
				table = to
			}
			m[ref.Ref()] = table
		}
		refs[sel] = m
	}

	for _, col := range q.columns(0, len(q.ts)) {
		sel := q.innermost(col.at)
		if sel == nil {
			continue
		}
		tables := refs[sel]
		if col.qualAt >= 0 {
			table, found := tables[col.qualifier]
			if !found || cat.HasColumn(table, col.name).Exists {
				continue
			}
			if to, found := cat.RenameColumn(table, col.name); found && cat.HasColumn(table, to).Exists {
				ed.ReplaceTokens(q.ts, col.at, col.at+1, to)
			}
			continue
		}
		if len(tables) == 0 || len(tables) != len(sel.From) {
			// Unqualified names can also come from subqueries and CTEs.
			continue
		}
		if anyHasColumn(cat, tables, col.name) {
			continue
		}
		for _, table := range sortedValues(tables) {
			if to, found := cat.RenameColumn(table, col.name); found && cat.HasColumn(table, to).Exists {
				ed.ReplaceTokens(q.ts, col.at, col.at+1, to)
				break
			}
		}
	}
	return ed.String(), ed.Changed()
}

func anyHasColumn(cat *catalog.Catalog, tables map[string]string, col string) bool {
	for _, t := range tables {
		if cat.HasColumn(t, col).Exists {
			return true
		}
	}
	return false
}

func sortedValues(m map[string]string) []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// keywordTable forces the source table a question's keywords imply when the
// query reads a table those keywords rule out.
type keywordTable struct{}

func (keywordTable) Name() string       { return "keyword_table" }
func (keywordTable) Category() Category { return CategorySchema }
func (keywordTable) Risk() Risk         { return RiskHigh }

func (keywordTable) Apply(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	cat := rc.Catalog
	kts := cat.KeywordTables()
	mentioned := func(kt catalog.KeywordTable) bool {
		for _, k := range kt.Keywords {
			if rc.Hints.Mentions(k) {
				return true
			}
		}
		return false
	}
	used := func(table string) bool {
		for _, sel := range q.selects {
			if sel.HasTable(table) {
				return true
			}
		}
		return false
	}

	for _, kt := range kts {
		if !mentioned(kt) || used(kt.Table) {
			continue
		}
		conflict := false
		for _, other := range kts {
			if other.Table != kt.Table && mentioned(other) && contains(kt.Replaces, other.Table) {
				conflict = true
			}
		}
		if conflict {
			continue
		}
		swap := make(map[string]string)
		for _, from := range kt.Replaces {
			swap[from] = kt.Table
			fromDict, ok1 := cat.Dictionary(from)
			toDict, ok2 := cat.Dictionary(kt.Table)
			if ok1 && ok2 && fromDict.Table != toDict.Table {
				swap[fromDict.Table] = toDict.Table
			}
		}
		ed := sqlscan.NewEditor(sql)
		for _, sel := range q.selects {
			for _, ref := range sel.From {
				to, found := swap[ref.Name]
				if !found || ref.Subquery != nil {
					continue
				}
				text := to
				if ref.Alias == "" {
					text = to + " " + q.ts[ref.NameAt].Text
				}
				ed.ReplaceTokens(q.ts, ref.NameAt, ref.NameAt+1, text)
			}
		}
		if ed.Changed() {
			return ed.String(), true
		}
	}
	return sql, false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// missingColumnJoin adds the join a single-table query needs when it
// references, unqualified, a column that only a related table has: patient
// demographics, admission fields, stay fields or an events table's label.
type missingColumnJoin struct{}

func (missingColumnJoin) Name() string       { return "missing_column_join" }
func (missingColumnJoin) Category() Category { return CategorySchema }
func (missingColumnJoin) Risk() Risk         { return RiskLow }

type joinPlan struct {
	table, alias, key string
	// cols are the referenced columns this join supplies.
	cols map[string]bool
}

func (missingColumnJoin) Apply(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	cat := rc.Catalog
	ed := sqlscan.NewEditor(sql)
	for _, sel := range q.selects {
		if len(sel.From) != 1 || sel.From[0].Subquery != nil {
			continue
		}
		base := sel.From[0]
		if _, isCTE := q.stmt.CTE(base.Name); isCTE || !cat.HasTable(base.Name) {
			continue
		}

		var own []colRef
		for _, c := range q.columns(sel.Start, sel.End) {
			if q.innermost(c.at) == sel {
				own = append(own, c)
			}
		}
		var missing []string
		for _, c := range own {
			if c.qualAt < 0 && !cat.HasColumn(base.Name, c.name).Exists && !contains(missing, c.name) &&
				len(cat.TablesWithColumn(c.name)) > 0 {
				missing = append(missing, c.name)
			}
		}
		if len(missing) == 0 {
			continue
		}
		plans, ok := planJoins(cat, base.Name, missing)
		if !ok {
			continue
		}

		baseRef := base.Ref()
		var join strings.Builder
		for _, p := range plans {
			fmt.Fprintf(&join, "\nJOIN %s %s ON %s.%s = %s.%s", p.table, p.alias, p.alias, p.key, baseRef, p.key)
		}
		ed.Insert(q.ts[base.End-1].End(), join.String())

		for _, c := range own {
			if c.qualAt >= 0 {
				continue
			}
			qual := ""
			if cat.HasColumn(base.Name, c.name).Exists {
				qual = baseRef
			} else {
				for _, p := range plans {
					if p.cols[c.name] {
						qual = p.alias
						break
					}
				}
			}
			if qual != "" {
				ed.Insert(q.ts[c.at].Offset, qual+".")
			}
		}
		for _, item := range sel.Items {
			if item.Star && item.Qualifier == "" {
				ed.Insert(q.ts[item.Start].Offset, baseRef+".")
			}
		}
	}
	return ed.String(), ed.Changed()
}

// planJoins finds, for every missing column, a related table joinable to base.
func planJoins(cat *catalog.Catalog, base string, missing []string) ([]*joinPlan, bool) {
	type candidate struct{ table, alias, key string }
	var candidates []candidate
	if d, ok := cat.Dictionary(base); ok {
		candidates = append(candidates, candidate{d.Table, "dct", d.Key})
	}
	for _, c := range []struct {
		role  catalog.Role
		alias string
		key   string
	}{
		{catalog.RolePatients, "pat", catalog.SubjectID},
		{catalog.RoleAdmissions, "adm", catalog.HadmID},
		{catalog.RoleStays, "icu", catalog.StayID},
	} {
		if t := cat.Source(c.role); t != "" && t != base {
			candidates = append(candidates, candidate{t, c.alias, c.key})
		}
	}

	var plans []*joinPlan
	byTable := map[string]*joinPlan{}
	for _, col := range missing {
		found := false
		for _, cand := range candidates {
			if !cat.HasColumn(cand.table, col).Exists || !cat.HasColumn(base, cand.key).Exists ||
				!cat.HasColumn(cand.table, cand.key).Exists {
				continue
			}
			p := byTable[cand.table]
			if p == nil {
				p = &joinPlan{table: cand.table, alias: cand.alias, key: cand.key, cols: map[string]bool{}}
				byTable[cand.table] = p
				plans = append(plans, p)
			}
			p.cols[col] = true
			found = true
			break
		}
		if !found {
			return nil, false
		}
	}
	return plans, true
}
