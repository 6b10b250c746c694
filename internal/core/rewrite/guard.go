package rewrite

import (
	"fmt"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// Guard returns the intent-guard pipeline. It re-checks a repaired candidate
// against the question and undoes filters and caps a repair added or dropped.
func Guard() *Pipeline {
	return NewPipeline("guard",
		topNConsistency{},
		unrequestedFirstStay{},
		unrequestedRowCap{},
		genderFilter{},
	)
}

var genderWords = []string{"gender", "sex", "female", "females", "male", "males", "women", "woman", "men", "man"}

// genderFilter keeps a patient sex restriction in step with the question: it
// adds or corrects one the question asks for and drops one it never mentions.
type genderFilter struct{}

func (genderFilter) Name() string       { return "gender_filter" }
func (genderFilter) Category() Category { return CategoryVocabulary }
func (genderFilter) Risk() Risk         { return RiskHigh }

const genderColumn = "gender"

func (g genderFilter) Apply(sql string, rc *Context) (string, bool) {
	if rc.Hints.Gender != "" {
		return g.require(sql, rc)
	}
	for _, w := range genderWords {
		if rc.Hints.Mentions(w) {
			return sql, false
		}
	}
	return fixpoint(sql, func(sql string) (string, bool) {
		q, ok := parseQuery(sql)
		if !ok {
			return sql, false
		}
		for _, col := range q.columns(0, len(q.ts)) {
			if col.name != genderColumn {
				continue
			}
			cmp, ok := comparisonAt(q.ts, col)
			sel := q.innermost(col.at)
			if !ok || cmp.op != "=" || sel == nil {
				continue
			}
			if from, to, ok := whereRange(sel); !ok || cmp.start < from || cmp.end > to {
				continue
			}
			ed := sqlscan.NewEditor(sql)
			if removePredicate(q.ts, ed, sel, cmp.start, cmp.end) {
				return ed.String(), true
			}
		}
		return sql, false
	})
}

func (genderFilter) require(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	cat := rc.Catalog
	patients := cat.Source(catalog.RolePatients)
	if !cat.HasColumn(patients, genderColumn).Exists {
		return sql, false
	}
	want := rc.Dialect.QuoteString(rc.Hints.Gender)

	ed := sqlscan.NewEditor(sql)
	found := false
	for _, col := range q.columns(0, len(ts)) {
		if col.name != genderColumn {
			continue
		}
		cmp, ok := comparisonAt(ts, col)
		if !ok || ts[cmp.literalAt].Kind != sqlscan.KindString {
			continue
		}
		found = true
		if cmp.op == "=" && ts[cmp.literalAt].Text != want {
			ed.ReplaceTokens(ts, cmp.literalAt, cmp.literalAt+1, want)
		}
	}
	if found {
		return ed.String(), ed.Changed()
	}

	for _, sel := range q.selects {
		for _, ref := range sel.From {
			if ref.Subquery != nil || ref.Name != patients {
				continue
			}
			addPredicate(ts, ed, sel, fmt.Sprintf("%s.%s = %s", ref.Ref(), genderColumn, want))
			return ed.String(), ed.Changed()
		}
	}
	return sql, false
}

// addPredicate ANDs pred onto sel's WHERE clause, creating one if needed.
func addPredicate(ts sqlscan.Tokens, ed *sqlscan.Editor, sel *sqlscan.Select, pred string) {
	from, to, ok := whereRange(sel)
	if !ok {
		at := sel.ClauseAfterWhere()
		if at < sel.End {
			ed.Insert(ts[at].Offset, "WHERE "+pred+"\n")
			return
		}
		if last := ts.Prev(sel.End); last >= 0 {
			ed.Insert(ts[last].End(), "\nWHERE "+pred)
		}
		return
	}
	first, last := ts.First(from), ts.Prev(to)
	if first < 0 || last < first {
		return
	}
	for i := first; i <= last; i++ {
		if ts[i].Is("or") && ts[i].Depth == ts[first].Depth {
			ed.Replace(ts[first].Offset, ts[last].End(), "("+ts.Slice(first, last+1)+") AND "+pred)
			return
		}
	}
	ed.Insert(ts[last].End(), " AND "+pred)
}
