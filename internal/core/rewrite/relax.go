package rewrite

import (
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// Relaxer returns the zero-result broadening pipeline.
func Relaxer() *Pipeline {
	return NewPipeline("relax",
		unrequestedFirstStay{},
		relaxICDVersion{},
		valueExpansion{},
		relaxEquality{},
	)
}

// labelColumns are free-text dictionary columns worth matching loosely.
var labelColumns = map[string]bool{
	"label": true, "long_title": true, "short_title": true, "drug": true, "abbreviation": true,
}

// relaxEquality turns exact matches on label and unknown category values into
// case-insensitive substring matches.
type relaxEquality struct{}

func (relaxEquality) Name() string       { return "relax_equality_to_like" }
func (relaxEquality) Category() Category { return CategoryVocabulary }
func (relaxEquality) Risk() Risk         { return RiskLow }

func (relaxEquality) Apply(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	ed := sqlscan.NewEditor(sql)
	for _, col := range q.columns(0, len(ts)) {
		cmp, ok := comparisonAt(ts, col)
		if !ok || cmp.op != "=" || ts[cmp.literalAt].Kind != sqlscan.KindString {
			continue
		}
		sel := q.innermost(col.at)
		if sel == nil {
			continue
		}
		lit := ts[cmp.literalAt].StringValue()
		if !labelColumns[col.name] {
			values := columnValues(q, sel, rc, col)
			if len(values) == 0 || contains(values, lit) {
				continue
			}
		}
		pattern := rc.Dialect.QuoteString("%" + strings.Trim(lit, "%") + "%")
		colText := ts.Slice(cmp.start, col.at+1)
		ed.ReplaceTokens(ts, cmp.start, cmp.end, "UPPER("+colText+") LIKE UPPER("+pattern+")")
	}
	return ed.String(), ed.Changed()
}

// relaxICDVersion drops icd_version restrictions that sit next to a code match.
type relaxICDVersion struct{}

func (relaxICDVersion) Name() string       { return "relax_icd_version" }
func (relaxICDVersion) Category() Category { return CategoryVocabulary }
func (relaxICDVersion) Risk() Risk         { return RiskLow }

func (relaxICDVersion) Apply(sql string, _ *Context) (string, bool) {
	return fixpoint(sql, func(sql string) (string, bool) {
		q, ok := parseQuery(sql)
		if !ok {
			return sql, false
		}
		ts := q.ts
		for _, col := range q.columns(0, len(ts)) {
			if col.name != "icd_version" {
				continue
			}
			cmp, ok := comparisonAt(ts, col)
			sel := q.innermost(col.at)
			if !ok || cmp.op != "=" || sel == nil || !pairedWithCode(q, col.at) {
				continue
			}
			if from, to, ok := whereRange(sel); !ok || cmp.start < from || cmp.end > to {
				continue
			}
			ed := sqlscan.NewEditor(sql)
			if removePredicate(ts, ed, sel, cmp.start, cmp.end) {
				return ed.String(), true
			}
		}
		return sql, false
	})
}

func pairedWithCode(q *query, at int) bool {
	from, to := andSegment(q.ts, at)
	for _, col := range q.columns(from, to) {
		if col.name == "icd_code" && len(codeLiterals(q.ts, col.at)) > 0 {
			return true
		}
	}
	return false
}
