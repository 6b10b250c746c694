// Package scoping restricts an analytic query to a previously defined
// cohort. It never widens the base query's FROM list: the cohort is applied
// as an EXISTS predicate on the best identifier both queries share.
package scoping

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// Strategy names how a scoped query was built.
type Strategy string

const (
	// StrategyStructural injects EXISTS into the base query's own WHERE clause.
	StrategyStructural Strategy = "structural"
	// StrategyProjection wraps both queries as CTEs joined on a shared
	// result column.
	StrategyProjection Strategy = "projection"
)

// Keys are the identifier columns tried, in preference order.
var Keys = []string{catalog.HadmID, catalog.StayID, catalog.SubjectID}

const (
	cohortAlias = "scope_cohort"
	baseCTE     = "scoped_base"
	cohortCTE   = "scoped_cohort"
)

// Scoped is a base query restricted to a cohort.
type Scoped struct {
	SQL      string   `json:"sql"`
	JoinKey  string   `json:"join_key"`
	Strategy Strategy `json:"strategy"`
}

// Composer scopes queries against a catalog.
type Composer struct {
	cat    *catalog.Catalog
	logger *zap.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// New returns a Composer over cat.
func New(cat *catalog.Catalog, opts ...Option) *Composer {
	c := &Composer{cat: cat, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scope restricts base to the rows whose identifier appears in cohort. ok is
// false, and base is returned unchanged, when no shared identifier exists.
func (c *Composer) Scope(base, cohort string) (Scoped, bool) {
	base, cohort = trim(base), trim(cohort)
	cohortCols := c.projected(cohort)
	if len(cohortCols) == 0 {
		c.logger.Debug("cohort projects no columns")
		return Scoped{SQL: base}, false
	}
	if s, ok := c.structural(base, cohort, cohortCols); ok {
		c.logger.Debug("scoped", zap.String("strategy", string(s.Strategy)), zap.String("key", s.JoinKey))
		return s, true
	}
	if s, ok := c.projection(base, cohort, cohortCols); ok {
		c.logger.Debug("scoped", zap.String("strategy", string(s.Strategy)), zap.String("key", s.JoinKey))
		return s, true
	}
	return Scoped{SQL: base}, false
}

// structural finds a table in the base query's main SELECT that owns an
// identifier the cohort projects and ANDs an EXISTS predicate on it.
func (c *Composer) structural(base, cohort string, cohortCols map[string]bool) (Scoped, bool) {
	st, err := sqlscan.Parse(base)
	if err != nil || st.Main == nil || st.Main.SetOpAt >= 0 {
		return Scoped{}, false
	}
	sel := st.Main
	for _, key := range Keys {
		if !cohortCols[key] {
			continue
		}
		for _, ref := range sel.From {
			if ref.Subquery != nil || ref.Name == "" {
				continue
			}
			if _, isCTE := st.CTE(ref.Name); isCTE && ref.Schema == "" {
				continue
			}
			if !c.cat.HasColumn(ref.Name, key).Exists {
				continue
			}
			pred := fmt.Sprintf("EXISTS (SELECT 1 FROM (%s) %s WHERE %s.%s = %s.%s)",
				cohort, cohortAlias, cohortAlias, key, ref.Ref(), key)
			out, ok := andWhere(st.Tokens, base, sel, pred)
			if !ok {
				return Scoped{}, false
			}
			return Scoped{SQL: out, JoinKey: key, Strategy: StrategyStructural}, true
		}
	}
	return Scoped{}, false
}

// projection joins the two queries' result sets on a shared identifier column.
func (c *Composer) projection(base, cohort string, cohortCols map[string]bool) (Scoped, bool) {
	baseCols := c.projected(base)
	for _, key := range Keys {
		if !baseCols[key] || !cohortCols[key] {
			continue
		}
		sql := fmt.Sprintf("WITH %s AS (\n%s\n), %s AS (\n%s\n)\nSELECT b.* FROM %s b\nWHERE EXISTS (SELECT 1 FROM %s c WHERE c.%s = b.%s)",
			baseCTE, base, cohortCTE, cohort, baseCTE, cohortCTE, key, key)
		return Scoped{SQL: sql, JoinKey: key, Strategy: StrategyProjection}, true
	}
	return Scoped{}, false
}

// projected returns the lower-cased output column names of sql's main SELECT.
// Stars that cannot be resolved are skipped.
func (c *Composer) projected(sql string) map[string]bool {
	st, err := sqlscan.Parse(sql)
	if err != nil {
		return nil
	}
	names, _ := st.MainProjection(c.cat.Columns)
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(n)] = true
	}
	return out
}

// andWhere ANDs pred onto sel's WHERE clause, creating one if needed.
func andWhere(ts sqlscan.Tokens, sql string, sel *sqlscan.Select, pred string) (string, bool) {
	ed := sqlscan.NewEditor(sql)
	after := sel.ClauseAfterWhere()
	if sel.WhereAt < 0 {
		if after < sel.End {
			ed.Insert(ts[after].Offset, "WHERE "+pred+"\n")
		} else {
			last := ts.Prev(sel.End)
			if last < 0 {
				return "", false
			}
			ed.Insert(ts[last].End(), "\nWHERE "+pred)
		}
		return ed.String(), true
	}
	first, last := ts.First(sel.WhereAt+1), ts.Prev(after)
	if first < 0 || last < first {
		return "", false
	}
	ed.Replace(ts[first].Offset, ts[last].End(), "("+ts.Slice(first, last+1)+") AND "+pred)
	return ed.String(), true
}

func trim(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
}
