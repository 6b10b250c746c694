package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/intent"
)

// population describes the base CTE: one row per admission, joined to its
// earliest ICU stay.
type population struct {
	admissions string
	stays      string
	patients   string
	requireICU bool
	selects    []string
	// columns are the output columns of the population CTE.
	columns []string
	// anchor expressions in terms of the population's own columns.
	hasAdmit, hasDisch bool
	ageExpr            string
}

func (c *Compiler) population(policy intent.PopulationPolicy) *population {
	cat := c.cat
	p := &population{
		admissions: cat.Source(catalog.RoleAdmissions),
		stays:      cat.Source(catalog.RoleStays),
		patients:   cat.Source(catalog.RolePatients),
		requireICU: policy.RequireICU,
	}
	add := func(expr, name string) {
		if expr == "" {
			return
		}
		if strings.HasSuffix(expr, "."+name) {
			p.selects = append(p.selects, expr)
		} else {
			p.selects = append(p.selects, expr+" AS "+name)
		}
		p.columns = append(p.columns, name)
	}
	adm := func(col string) string {
		if cat.HasColumn(p.admissions, col).Exists {
			return "a." + col
		}
		return ""
	}
	stay := func(col string) string {
		if p.stays != "" && cat.HasColumn(p.stays, col).Exists {
			return "i." + col
		}
		return ""
	}

	add(adm(catalog.SubjectID), catalog.SubjectID)
	add(adm(catalog.HadmID), catalog.HadmID)
	add(stay(catalog.StayID), catalog.StayID)
	add(adm("admittime"), "admittime")
	add(adm("dischtime"), "dischtime")
	add(adm("deathtime"), "deathtime")
	add(stay("intime"), "intime")
	add(stay("outtime"), "outtime")
	add(stay("los"), "los")
	p.hasAdmit = adm("admittime") != ""
	p.hasDisch = adm("dischtime") != ""

	if p.patients != "" && cat.HasColumn(p.patients, "anchor_age").Exists &&
		cat.HasColumn(p.patients, "anchor_year").Exists && p.hasAdmit {
		p.ageExpr = fmt.Sprintf("(pt.anchor_age + (%s - pt.anchor_year))", c.dialect.Year("a.admittime"))
		add(p.ageExpr, "age")
	}
	if p.patients != "" && cat.HasColumn(p.patients, "gender").Exists {
		add("pt.gender", "gender")
	}

	add(coalesce(stay("intime"), adm("admittime")), "anchor_start")
	add(coalesce(stay("outtime"), adm("dischtime")), "anchor_end")
	return p
}

func coalesce(a, b string) string {
	switch {
	case a != "" && b != "":
		return fmt.Sprintf("COALESCE(%s, %s)", a, b)
	case a != "":
		return a
	default:
		return b
	}
}

func (p *population) hasColumn(col string) bool {
	for _, c := range p.columns {
		if c == col {
			return true
		}
	}
	return false
}

func (p *population) joinsPatients() bool {
	for _, s := range p.selects {
		if strings.Contains(s, "pt.") {
			return true
		}
	}
	return false
}

var errNoAge = errors.New("age is not derivable: the patients source needs anchor_age and anchor_year")

func (p *population) ageFilter(d dialect.Dialect, step *intent.AgeRange) (string, error) {
	if p.ageExpr == "" {
		return "", errNoAge
	}
	op := "BETWEEN"
	if step.IsExclusion {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %d AND %d", p.ageExpr, op, step.Min, step.Max), nil
}

func (p *population) sql(filters []string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(p.selects, ",\n    "))
	fmt.Fprintf(&sb, "\n  FROM %s a", p.admissions)
	if p.stays != "" && p.hasColumn(catalog.StayID) {
		join := "LEFT JOIN"
		if p.requireICU {
			join = "INNER JOIN"
		}
		order := "st.stay_id"
		if strings.Contains(strings.Join(p.selects, " "), "i.intime") {
			order = "st.intime, st.stay_id"
		}
		fmt.Fprintf(&sb, "\n  %s (\n    SELECT st.*, ROW_NUMBER() OVER (PARTITION BY st.hadm_id ORDER BY %s) AS stay_rank\n    FROM %s st\n  ) i ON i.hadm_id = a.hadm_id AND i.stay_rank = 1",
			join, order, p.stays)
	}
	if p.joinsPatients() {
		fmt.Fprintf(&sb, "\n  INNER JOIN %s pt ON pt.subject_id = a.subject_id", p.patients)
	}
	if len(filters) > 0 {
		sb.WriteString("\n  WHERE ")
		sb.WriteString(strings.Join(filters, "\n    AND "))
	}
	return sb.String()
}

func (p *population) episodeSQL(policy intent.PopulationPolicy) string {
	partition := catalog.SubjectID
	if policy.EpisodeUnit == intent.PerAdmission {
		partition = catalog.HadmID
	}
	order := "p.anchor_start"
	if policy.EpisodeSelector == intent.EpisodeLast {
		order += " DESC"
	}
	return fmt.Sprintf("SELECT * FROM (\n    SELECT p.*, ROW_NUMBER() OVER (PARTITION BY p.%s ORDER BY %s) AS episode_rank\n    FROM %s p\n  ) ranked\n  WHERE episode_rank = 1",
		partition, order, PopulationCTE)
}
