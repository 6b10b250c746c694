// Package compiler turns a typed cohort specification into a chain of CTEs
// that narrow a base population with EXISTS / NOT EXISTS filters.
package compiler

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/intent"
)

// CTE names emitted by the compiler.
const (
	PopulationCTE = "population"
	EpisodeCTE    = "episodes"
	FinalLabel    = "Final Cohort"
)

// Bundle is the compiler output. It is immutable once returned.
type Bundle struct {
	CohortSQL     string
	CountSQL      string
	DiagnosticSQL string
	Warnings      []string
	// CTEs lists emitted CTE names in order; the last one is the cohort.
	CTEs  []string
	Steps []CompiledStep
}

// CompiledStep describes how one step was compiled.
type CompiledStep struct {
	Order         int
	Label         string
	Kind          intent.StepKind
	CTE           string
	JoinKey       string
	Exclusion     bool
	Windowed      bool
	SourceSQL     string
	SourceColumns []string
}

// Compiler compiles intent steps against a catalog. It is stateless and safe
// for concurrent use.
type Compiler struct {
	cat     *catalog.Catalog
	dialect dialect.Dialect
	logger  *zap.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithDialect overrides the catalog's dialect.
func WithDialect(d dialect.Dialect) Option {
	return func(c *Compiler) {
		c.dialect = d
	}
}

// WithLogger sets the compiler's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// New creates a compiler.
func New(cat *catalog.Catalog, opts ...Option) *Compiler {
	c := &Compiler{cat: cat, dialect: cat.Dialect(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the target dialect.
func (c *Compiler) Dialect() dialect.Dialect {
	return c.dialect
}

// CompileSpec compiles a decoded specification.
func (c *Compiler) CompileSpec(spec *intent.Spec) *Bundle {
	return c.Compile(spec.Steps, spec.Policy)
}

type cte struct {
	name  string
	body  string
	label string
}

// Compile compiles steps under policy. It never fails: steps that cannot be
// compiled are dropped and reported in Warnings, and the bundle always has
// at least the population CTE.
func (c *Compiler) Compile(steps []intent.Step, policy intent.PopulationPolicy) *Bundle {
	policy = policy.WithDefaults()
	b := &Bundle{}
	warn := func(step intent.Step, format string, args ...any) {
		msg := fmt.Sprintf("step %q dropped: %s", step.Label(), fmt.Sprintf(format, args...))
		if step.Base().IsMandatory {
			msg = "mandatory " + msg
		}
		b.Warnings = append(b.Warnings, msg)
		c.logger.Warn("cohort step dropped", zap.String("step", step.Label()), zap.String("kind", string(step.Kind())),
			zap.Bool("mandatory", step.Base().IsMandatory), zap.String("reason", fmt.Sprintf(format, args...)))
	}

	pop := c.population(policy)
	var ageFilters []string
	var remaining []intent.Step
	for _, step := range steps {
		age, ok := step.(*intent.AgeRange)
		if !ok {
			remaining = append(remaining, step)
			continue
		}
		filter, err := pop.ageFilter(c.dialect, age)
		if err != nil {
			warn(step, "%v", err)
			continue
		}
		ageFilters = append(ageFilters, filter)
		b.Steps = append(b.Steps, CompiledStep{Label: age.Label(), Kind: age.Kind(), CTE: PopulationCTE, Exclusion: age.IsExclusion})
	}

	ctes := []cte{{name: PopulationCTE, body: pop.sql(ageFilters), label: "Population"}}
	if policy.EpisodeSelector != intent.EpisodeAll {
		ctes = append(ctes, cte{name: EpisodeCTE, body: pop.episodeSQL(policy), label: episodeLabel(policy)})
	}

	for _, step := range remaining {
		prev := ctes[len(ctes)-1].name
		src, err := c.source(step, pop)
		if err != nil {
			warn(step, "%v", err)
			continue
		}
		projected, err := src.projection(c.cat)
		if err != nil {
			warn(step, "source query is not inspectable: %v", err)
			continue
		}
		key, ok := resolveJoinKey(src.naturalKey, projected, pop.columns)
		if !ok {
			warn(step, "source query projects no identifier shared with the cohort (projects %s)", strings.Join(projected, ", "))
			continue
		}

		window, windowed, err := c.window(step, policy, projected, pop)
		if err != nil {
			warn(step, "%v", err)
			continue
		}

		name := fmt.Sprintf("step_%d", len(ctes)-firstStepOffset(policy))
		ctes = append(ctes, cte{
			name:  name,
			body:  existsFilter(prev, src.sql, key, window, step.Base().IsExclusion),
			label: step.Label(),
		})
		b.Steps = append(b.Steps, CompiledStep{
			Label:         step.Label(),
			Kind:          step.Kind(),
			CTE:           name,
			JoinKey:       key,
			Exclusion:     step.Base().IsExclusion,
			Windowed:      windowed,
			SourceSQL:     src.sql,
			SourceColumns: projected,
		})
		for _, part := range src.unresolved {
			msg := fmt.Sprintf("step %q: %s unresolved and ignored", step.Label(), part)
			if step.Base().IsMandatory {
				msg = "mandatory " + msg
			}
			b.Warnings = append(b.Warnings, msg)
			c.logger.Warn("cohort step partially resolved", zap.String("step", step.Label()), zap.String("unresolved", part))
		}
		c.logger.Debug("cohort step compiled", zap.String("cte", name), zap.String("step", step.Label()),
			zap.String("join_key", key), zap.Bool("windowed", windowed))
	}

	for i := range b.Steps {
		b.Steps[i].Order = i + 1
	}
	for _, ct := range ctes {
		b.CTEs = append(b.CTEs, ct.name)
	}
	c.render(b, ctes)
	return b
}

// firstStepOffset is the number of non-step CTEs preceding step_1.
func firstStepOffset(policy intent.PopulationPolicy) int {
	if policy.EpisodeSelector != intent.EpisodeAll {
		return 1
	}
	return 0
}

func episodeLabel(policy intent.PopulationPolicy) string {
	unit := "subject"
	if policy.EpisodeUnit == intent.PerAdmission {
		unit = "admission"
	}
	sel := string(policy.EpisodeSelector)
	return fmt.Sprintf("%s%s episode per %s", strings.ToUpper(sel[:1]), sel[1:], unit)
}

func existsFilter(prev, source, key, window string, exclusion bool) string {
	op := "EXISTS"
	if exclusion {
		op = "NOT EXISTS"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s p\n  WHERE %s (\n    SELECT 1 FROM (\n", prev, op)
	sb.WriteString(indent(source, "      "))
	fmt.Fprintf(&sb, "\n    ) s\n    WHERE s.%s = p.%s", key, key)
	if window != "" {
		fmt.Fprintf(&sb, "\n      AND %s", window)
	}
	sb.WriteString("\n  )")
	return sb.String()
}

func (c *Compiler) render(b *Bundle, ctes []cte) {
	var with strings.Builder
	with.WriteString("WITH ")
	for i, ct := range ctes {
		if i > 0 {
			with.WriteString(",\n")
		}
		fmt.Fprintf(&with, "%s AS (\n  %s\n)", ct.name, ct.body)
	}
	prefix := with.String()
	last := ctes[len(ctes)-1].name

	b.CohortSQL = fmt.Sprintf("%s\nSELECT c.* FROM %s c", prefix, last)
	b.CountSQL = fmt.Sprintf("%s\nSELECT COUNT(*) AS cohort_size FROM %s", prefix, last)

	var diag strings.Builder
	for i, ct := range ctes {
		fmt.Fprintf(&diag, "  SELECT %s AS step_label, %d AS step_order, COUNT(*) AS row_count FROM %s\n  UNION ALL\n",
			c.dialect.QuoteString(ct.label), i, ct.name)
	}
	fmt.Fprintf(&diag, "  SELECT %s AS step_label, %d AS step_order, COUNT(*) AS row_count FROM %s",
		c.dialect.QuoteString(FinalLabel), len(ctes), last)
	b.DiagnosticSQL = fmt.Sprintf("%s\nSELECT step_label, step_order, row_count FROM (\n%s\n) diag\nORDER BY step_order",
		prefix, diag.String())
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
