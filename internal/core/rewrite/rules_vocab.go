package rewrite

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// icdVersion corrects icd_version comparisons paired with a code prefix of
// the other coding system.
type icdVersion struct{}

func (icdVersion) Name() string       { return "icd_version" }
func (icdVersion) Category() Category { return CategoryVocabulary }
func (icdVersion) Risk() Risk         { return RiskLow }

func (icdVersion) Apply(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	ed := sqlscan.NewEditor(sql)
	for _, col := range q.columns(0, len(ts)) {
		if col.name != "icd_version" {
			continue
		}
		cmp, ok := comparisonAt(ts, col)
		if !ok || cmp.op != "=" || ts[cmp.literalAt].Kind != sqlscan.KindNumber {
			continue
		}
		want, ok := segmentVersion(q, rc, col.at)
		if !ok || strconv.Itoa(want) == ts[cmp.literalAt].Text {
			continue
		}
		ed.ReplaceTokens(ts, cmp.literalAt, cmp.literalAt+1, strconv.Itoa(want))
	}
	return ed.String(), ed.Changed()
}

// segmentBoundary are the keywords that end an AND chain.
var segmentBoundary = map[string]bool{
	"or": true, "where": true, "on": true, "having": true, "select": true, "from": true,
	"join": true, "group": true, "order": true, "limit": true, "fetch": true,
	"union": true, "intersect": true, "except": true, "minus": true, "when": true, "then": true,
}

// andSegment returns the token range of the AND-joined conjunct chain that
// contains token i at its depth.
func andSegment(ts sqlscan.Tokens, i int) (int, int) {
	d := ts[i].Depth
	from := i
	for j := i - 1; j >= 0; j-- {
		t := ts[j]
		if t.Depth < d || (t.Depth == d && segmentEnd(t)) {
			break
		}
		from = j
	}
	to := i + 1
	for j := i + 1; j < len(ts); j++ {
		t := ts[j]
		if t.Depth < d || (t.Depth == d && segmentEnd(t)) {
			break
		}
		to = j + 1
	}
	return from, to
}

func segmentEnd(t sqlscan.Token) bool {
	return t.IsPunct(",") || t.IsPunct(";") || (t.Kind == sqlscan.KindIdent && segmentBoundary[lower(t.Text)])
}

// segmentVersion returns the coding-system version implied by the icd_code
// literals in the conjunct chain around token at. ok is false when there are
// none or they disagree.
func segmentVersion(q *query, rc *Context, at int) (int, bool) {
	ts := q.ts
	from, to := andSegment(ts, at)
	version := 0
	for _, col := range q.columns(from, to) {
		if col.name != "icd_code" || ts[col.at].Depth != ts[at].Depth {
			continue
		}
		for _, lit := range codeLiterals(ts, col.at) {
			v, ok := codeVersion(rc, lit)
			if !ok {
				return 0, false
			}
			if version != 0 && version != v {
				return 0, false
			}
			version = v
		}
	}
	return version, version != 0
}

// codeLiterals returns the string literals compared to the column at i with
// =, LIKE or IN.
func codeLiterals(ts sqlscan.Tokens, i int) []string {
	op := ts.Next(i)
	if op < 0 {
		return nil
	}
	switch {
	case ts[op].Kind == sqlscan.KindOperator && ts[op].Text == "=", ts[op].Is("like"):
		lit := ts.Next(op)
		if lit >= 0 && ts[lit].Kind == sqlscan.KindString {
			return []string{ts[lit].StringValue()}
		}
	case ts[op].Is("in"):
		open := ts.Next(op)
		closeAt := ts.Match(open)
		if closeAt < 0 {
			return nil
		}
		var out []string
		for j := open + 1; j < closeAt; j++ {
			if ts[j].Kind == sqlscan.KindString {
				out = append(out, ts[j].StringValue())
			}
		}
		return out
	}
	return nil
}

func codeVersion(rc *Context, lit string) (int, bool) {
	prefix := strings.ToUpper(strings.TrimRight(strings.TrimSpace(lit), "%_"))
	prefix = strings.ReplaceAll(prefix, ".", "")
	if prefix == "" || strings.ContainsAny(prefix, "%_") {
		return 0, false
	}
	if v, ok := rc.Catalog.ICDVersionOverride(prefix); ok {
		return v, true
	}
	r := rune(prefix[0])
	switch {
	case unicode.IsDigit(r):
		return 9, true
	case unicode.IsLetter(r):
		return 10, true
	}
	return 0, false
}

// valueExpansion replaces a category literal that is not a known value with
// the closest known values.
type valueExpansion struct{}

func (valueExpansion) Name() string       { return "value_expansion" }
func (valueExpansion) Category() Category { return CategoryVocabulary }
func (valueExpansion) Risk() Risk         { return RiskHigh }

func (valueExpansion) Apply(sql string, rc *Context) (string, bool) {
	q, ok := parseQuery(sql)
	if !ok {
		return sql, false
	}
	ts := q.ts
	limit := rc.MaxValueExpansion
	if limit <= 0 {
		limit = 1
	}
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
		values := columnValues(q, sel, rc, col)
		if len(values) == 0 {
			continue
		}
		lit := ts[cmp.literalAt].StringValue()
		if contains(values, lit) {
			continue
		}
		matches := closestValues(lit, values, limit)
		if len(matches) == 0 {
			continue
		}
		quoted := make([]string, len(matches))
		for i, m := range matches {
			quoted[i] = rc.Dialect.QuoteString(m)
		}
		colText := ts.Slice(cmp.start, col.at+1)
		if len(quoted) == 1 {
			ed.ReplaceTokens(ts, cmp.start, cmp.end, colText+" = "+quoted[0])
		} else {
			ed.ReplaceTokens(ts, cmp.start, cmp.end, colText+" IN ("+strings.Join(quoted, ", ")+")")
		}
	}
	return ed.String(), ed.Changed()
}

// columnValues returns the value vocabulary of the column col refers to.
func columnValues(q *query, sel *sqlscan.Select, rc *Context, col colRef) []string {
	tables := q.tables(sel, rc.Catalog)
	if col.qualifier != "" {
		if t, ok := tables[col.qualifier]; ok {
			return rc.Catalog.Values(t, col.name)
		}
		return nil
	}
	for _, t := range sortedValues(tables) {
		if v := rc.Catalog.Values(t, col.name); len(v) > 0 {
			return v
		}
	}
	return nil
}

// closestValues ranks values against lit and returns at most limit of them.
// A case-insensitive exact match wins outright; values containing lit
// verbatim rank ahead of looser subsequence matches.
func closestValues(lit string, values []string, limit int) []string {
	for _, v := range values {
		if strings.EqualFold(v, lit) {
			return []string{v}
		}
	}
	ranks := fuzzy.RankFindNormalizedFold(strings.TrimSpace(lit), values)
	if len(ranks) == 0 {
		// The literal may be longer than the stored value ("Medicare insurance").
		for i, v := range values {
			if len(v) >= 3 && strings.Contains(strings.ToLower(lit), strings.ToLower(v)) {
				ranks = append(ranks, fuzzy.Rank{Source: lit, Target: v, Distance: len(lit) - len(v), OriginalIndex: i})
			}
		}
	}
	needle := strings.ToLower(strings.TrimSpace(lit))
	sort.SliceStable(ranks, func(i, j int) bool {
		ci := strings.Contains(strings.ToLower(ranks[i].Target), needle)
		cj := strings.Contains(strings.ToLower(ranks[j].Target), needle)
		if ci != cj {
			return ci
		}
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})
	out := make([]string, 0, limit)
	for _, r := range ranks {
		if len(out) == limit {
			break
		}
		out = append(out, r.Target)
	}
	return out
}

// unrequestedFirstStay drops first-stay restrictions the question did not ask for.
type unrequestedFirstStay struct{}

func (unrequestedFirstStay) Name() string       { return "unrequested_first_stay" }
func (unrequestedFirstStay) Category() Category { return CategoryVocabulary }
func (unrequestedFirstStay) Risk() Risk         { return RiskHigh }

func (unrequestedFirstStay) Apply(sql string, rc *Context) (string, bool) {
	if rc.Hints.FirstICU {
		return sql, false
	}
	return fixpoint(sql, func(sql string) (string, bool) {
		q, ok := parseQuery(sql)
		if !ok {
			return sql, false
		}
		for _, col := range q.columns(0, len(q.ts)) {
			if !rc.Catalog.IsFirstStayColumn(col.name) {
				continue
			}
			cmp, ok := comparisonAt(q.ts, col)
			if !ok || cmp.op != "=" {
				continue
			}
			sel := q.innermost(col.at)
			if sel == nil {
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

// fixpoint applies step until it stops changing sql. Each step performs a
// single edit so that overlapping removals never collide.
func fixpoint(sql string, step func(string) (string, bool)) (string, bool) {
	changed := false
	for i := 0; i < 32; i++ {
		out, ok := step(sql)
		if !ok || out == sql {
			break
		}
		sql, changed = out, true
	}
	return sql, changed
}

// unrequestedRowCap removes outer row caps when the question asked for no
// limit, keeping only the default cap on unbounded time-bucketed aggregates.
type unrequestedRowCap struct{}

func (unrequestedRowCap) Name() string       { return "unrequested_row_cap" }
func (unrequestedRowCap) Category() Category { return CategoryVocabulary }
func (unrequestedRowCap) Risk() Risk         { return RiskHigh }

func (unrequestedRowCap) Apply(sql string, rc *Context) (string, bool) {
	if rc.Hints.LimitMentioned {
		return sql, false
	}
	stripped, caps := stripRowLimits(sql)
	if len(caps) == 0 {
		return sql, false
	}
	if len(caps) == 1 && caps[0].n == rc.DefaultRowCap && nativeForm(rc, caps[0].form) && unboundedSeries(stripped) {
		return sql, false
	}
	return stripped, stripped != sql
}
