package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/intent"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// timeColumn is the name every source query exposes its event time under.
const timeColumn = "charttime"

// sourceQuery is the small per-step query an EXISTS filter correlates with.
type sourceQuery struct {
	sql        string
	naturalKey string
	// unresolved lists the parts of the step the query leaves out.
	unresolved []string
}

// projection returns the columns the source query actually projects, read
// back from its SQL text rather than from what the builder intended.
func (s *sourceQuery) projection(cat *catalog.Catalog) ([]string, error) {
	stmt, err := sqlscan.Parse(s.sql)
	if err != nil {
		return nil, err
	}
	cols, ok := stmt.MainProjection(cat.Columns)
	if !ok {
		return nil, errors.New("projection could not be resolved")
	}
	return cols, nil
}

// resolveJoinKey picks the natural key when both sides have it, otherwise the
// first identifier in hadm_id, stay_id, subject_id order that the source
// projects and the cohort carries.
func resolveJoinKey(natural string, projected, cohort []string) (string, bool) {
	candidates := append([]string{natural}, catalog.IdentifierColumns...)
	for _, key := range candidates {
		if key != "" && contains(projected, key) && contains(cohort, key) {
			return key, true
		}
	}
	return "", false
}

// sourceBuilder is a StepVisitor that builds the source query of one step.
type sourceBuilder struct {
	c   *Compiler
	pop *population
	out *sourceQuery
	err error
}

func (c *Compiler) source(step intent.Step, pop *population) (*sourceQuery, error) {
	b := &sourceBuilder{c: c, pop: pop}
	step.Visit(b)
	if b.err != nil {
		return nil, b.err
	}
	if b.out == nil {
		return nil, fmt.Errorf("%s steps have no source query", step.Kind())
	}
	return b.out, nil
}

func (b *sourceBuilder) fail(format string, args ...any) {
	b.err = fmt.Errorf(format, args...)
}

// identifiers returns the identifier columns table declares, qualified by alias.
func (b *sourceBuilder) identifiers(table, alias string) []string {
	var out []string
	for _, id := range []string{catalog.SubjectID, catalog.HadmID, catalog.StayID} {
		if b.c.cat.HasColumn(table, id).Exists {
			out = append(out, alias+"."+id)
		}
	}
	return out
}

func (b *sourceBuilder) VisitAgeRange(*intent.AgeRange) {
	b.fail("age ranges are applied to the population")
}

func (b *sourceBuilder) VisitDiagnosisPrefix(s *intent.DiagnosisPrefix) {
	b.codePrefix(catalog.RoleDiagnoses, s.Codes, s.Names, b.c.cat.DiagnosisCodes)
}

func (b *sourceBuilder) VisitProcedurePrefix(s *intent.ProcedurePrefix) {
	b.codePrefix(catalog.RoleProcedures, s.Codes, s.Names, b.c.cat.ProcedureCodes)
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]+$`)

func (b *sourceBuilder) codePrefix(role catalog.Role, codes []intent.Code, names []string,
	resolve func(string) ([]catalog.Code, bool)) {
	cat := b.c.cat
	table := cat.Source(role)
	if table == "" || !cat.HasColumn(table, "icd_code").Exists {
		b.fail("catalog has no %s source with an icd_code column", role)
		return
	}

	all := make([]catalog.Code, 0, len(codes))
	for _, code := range codes {
		all = append(all, catalog.Code{Prefix: code.Prefix, Version: code.ICDVersion})
	}
	var unresolved []string
	for _, name := range names {
		resolved, ok := resolve(name)
		if !ok {
			unresolved = append(unresolved, name)
			continue
		}
		all = append(all, resolved...)
	}
	if len(all) == 0 {
		if len(unresolved) > 0 {
			b.fail("no codes: unresolved names %s", strings.Join(unresolved, ", "))
		} else {
			b.fail("empty code list")
		}
		return
	}

	hasVersion := cat.HasColumn(table, "icd_version").Exists
	seen := make(map[string]bool)
	var preds []string
	for _, code := range all {
		prefix := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code.Prefix), ".", ""))
		if !codePattern.MatchString(prefix) {
			b.fail("invalid code prefix %q", code.Prefix)
			return
		}
		pred := fmt.Sprintf("d.icd_code LIKE %s", b.c.dialect.QuoteString(prefix+"%"))
		if hasVersion && code.Version != 0 {
			pred = fmt.Sprintf("(%s AND d.icd_version = %d)", pred, code.Version)
		}
		if !seen[pred] {
			seen[pred] = true
			preds = append(preds, pred)
		}
	}

	ids := b.identifiers(table, "d")
	b.out = &sourceQuery{
		sql: fmt.Sprintf("SELECT DISTINCT %s\nFROM %s d\nWHERE %s",
			strings.Join(ids, ", "), table, strings.Join(preds, "\n   OR ")),
		naturalKey: catalog.HadmID,
	}
	noun := "diagnosis"
	if role == catalog.RoleProcedures {
		noun = "procedure"
	}
	for _, name := range unresolved {
		b.out.unresolved = append(b.out.unresolved, fmt.Sprintf("%s %q", noun, name))
	}
}

func (b *sourceBuilder) VisitIcuLengthOfStay(s *intent.IcuLengthOfStay) {
	cat := b.c.cat
	table := cat.Source(catalog.RoleStays)
	if table == "" {
		b.fail("catalog has no ICU stay source")
		return
	}
	var los string
	switch {
	case cat.HasColumn(table, "los").Exists:
		los = "st.los"
	case cat.HasColumn(table, "intime").Exists && cat.HasColumn(table, "outtime").Exists:
		los = b.c.dialect.DaysBetween("st.intime", "st.outtime")
	default:
		b.fail("ICU stay source has neither los nor intime/outtime")
		return
	}
	cond := fmt.Sprintf("%s >= %s", los, formatNumber(s.MinDays))
	if s.MaxDays != nil {
		cond += fmt.Sprintf(" AND %s <= %s", los, formatNumber(*s.MaxDays))
	}
	b.out = &sourceQuery{
		sql:        fmt.Sprintf("SELECT %s\nFROM %s st\nWHERE %s", strings.Join(b.identifiers(table, "st"), ", "), table, cond),
		naturalKey: catalog.StayID,
	}
}

func (b *sourceBuilder) VisitDeathWithinDays(s *intent.DeathWithinDays) {
	cat := b.c.cat
	adm := cat.Source(catalog.RoleAdmissions)
	patients := cat.Source(catalog.RolePatients)
	if !cat.HasColumn(adm, "admittime").Exists {
		b.fail("admissions source has no admittime")
		return
	}
	var deathCols []string
	if cat.HasColumn(adm, "deathtime").Exists {
		deathCols = append(deathCols, "a.deathtime")
	}
	joinPatients := patients != "" && cat.HasColumn(patients, "dod").Exists
	if joinPatients {
		deathCols = append(deathCols, "pt.dod")
	}
	if len(deathCols) == 0 {
		b.fail("no death time column is available")
		return
	}
	death := deathCols[0]
	if len(deathCols) > 1 {
		death = fmt.Sprintf("COALESCE(%s)", strings.Join(deathCols, ", "))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s\nFROM %s a", strings.Join(b.identifiers(adm, "a"), ", "), adm)
	if joinPatients {
		fmt.Fprintf(&sb, "\nINNER JOIN %s pt ON pt.subject_id = a.subject_id", patients)
	}
	fmt.Fprintf(&sb, "\nWHERE %s IS NOT NULL\n  AND %s <= %s", death, death, b.c.dialect.AddDays("a.admittime", s.Days))
	b.out = &sourceQuery{sql: sb.String(), naturalKey: catalog.HadmID}
}

func (b *sourceBuilder) VisitMeasurementRequired(s *intent.MeasurementRequired) {
	b.measurement(s.Signals, "")
}

func (b *sourceBuilder) VisitVitalOrLabSignal(s *intent.VitalOrLabSignal) {
	b.measurement([]string{s.Signal}, fmt.Sprintf("%s %s", s.Operator.SQL(), formatNumber(s.Value)))
}

type signalGroup struct {
	table   string
	itemIDs []int
	value   string
	time    string
}

// measurement builds a UNION ALL over every events table the signals live in.
// Only identifiers every branch has are projected, so the union is well formed.
func (b *sourceBuilder) measurement(signals []string, threshold string) {
	cat := b.c.cat
	groups := map[string]*signalGroup{}
	var unresolved []string
	for _, name := range signals {
		sig, ok := cat.Signal(name)
		if !ok {
			unresolved = append(unresolved, name)
			continue
		}
		g := groups[sig.Table]
		if g == nil {
			g = &signalGroup{table: sig.Table, value: sig.ValueColumn, time: sig.TimeColumn}
			if g.value == "" && cat.HasColumn(sig.Table, "valuenum").Exists {
				g.value = "valuenum"
			}
			if g.time == "" && cat.HasColumn(sig.Table, timeColumn).Exists {
				g.time = timeColumn
			}
			groups[sig.Table] = g
		}
		g.itemIDs = append(g.itemIDs, sig.ItemIDs...)
	}
	if len(groups) == 0 {
		b.fail("unresolved signals %s", strings.Join(unresolved, ", "))
		return
	}

	tables := make([]string, 0, len(groups))
	for t := range groups {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	ids := []string{catalog.SubjectID, catalog.HadmID, catalog.StayID}
	withTime := true
	for _, t := range tables {
		var kept []string
		for _, id := range ids {
			if cat.HasColumn(t, id).Exists {
				kept = append(kept, id)
			}
		}
		ids = kept
		if groups[t].time == "" {
			withTime = false
		}
	}
	if len(ids) == 0 {
		b.fail("signal tables %s share no identifier column", strings.Join(tables, ", "))
		return
	}

	branches := make([]string, 0, len(tables))
	for _, t := range tables {
		g := groups[t]
		if !cat.HasColumn(t, "itemid").Exists {
			b.fail("signal table %s has no itemid column", t)
			return
		}
		cols := make([]string, 0, len(ids)+1)
		for _, id := range ids {
			cols = append(cols, "e."+id)
		}
		if withTime {
			if g.time == timeColumn {
				cols = append(cols, "e."+timeColumn)
			} else {
				cols = append(cols, fmt.Sprintf("e.%s AS %s", g.time, timeColumn))
			}
		}
		where := fmt.Sprintf("e.itemid IN (%s)", joinInts(g.itemIDs))
		if threshold != "" {
			if g.value == "" {
				b.fail("signal table %s has no numeric value column", t)
				return
			}
			where += fmt.Sprintf(" AND e.%s %s", g.value, threshold)
		}
		branches = append(branches, fmt.Sprintf("SELECT %s\nFROM %s e\nWHERE %s", strings.Join(cols, ", "), t, where))
	}
	b.out = &sourceQuery{sql: strings.Join(branches, "\nUNION ALL\n"), naturalKey: catalog.StayID}
	for _, name := range unresolved {
		b.out.unresolved = append(b.out.unresolved, fmt.Sprintf("signal %q", name))
	}
}

func (b *sourceBuilder) VisitDerivedScore(s *intent.DerivedScore) {
	cat := b.c.cat
	score, ok := cat.DerivedScore(s.Score)
	if !ok {
		b.fail("unknown derived score %q", s.Score)
		return
	}
	cols := b.identifiers(score.Table, "sc")
	if score.TimeColumn != "" && cat.HasColumn(score.Table, score.TimeColumn).Exists {
		if score.TimeColumn == timeColumn {
			cols = append(cols, "sc."+timeColumn)
		} else {
			cols = append(cols, fmt.Sprintf("sc.%s AS %s", score.TimeColumn, timeColumn))
		}
	}
	cond := fmt.Sprintf("sc.%s IS NOT NULL", score.Column)
	if s.Value != nil && s.Operator != "" {
		cond = fmt.Sprintf("sc.%s %s %s", score.Column, s.Operator.SQL(), formatNumber(*s.Value))
	}
	natural := score.Key
	if natural == "" {
		natural = catalog.StayID
	}
	b.out = &sourceQuery{
		sql:        fmt.Sprintf("SELECT %s\nFROM %s sc\nWHERE %s", strings.Join(cols, ", "), score.Table, cond),
		naturalKey: natural,
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
