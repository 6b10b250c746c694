// Package rewrite implements the rewrite rule engine: an ordered pipeline of
// small, independent transformations applied to candidate SQL before it is
// executed. Rules are pure: the same question, SQL and profile always yield
// the same output and the same list of applied rules.
package rewrite

import (
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// Profile selects which rules run.
type Profile string

const (
	// Relaxed runs only low-risk rules.
	Relaxed Profile = "relaxed"
	// Aggressive also runs rules that rewrite semantics from inferred intent.
	Aggressive Profile = "aggressive"
)

// Category groups rules. Categories run in declaration order.
type Category int

const (
	CategoryDialect Category = iota
	CategorySchema
	CategoryAggregate
	CategoryVocabulary
	CategoryRowLimit
)

func (c Category) String() string {
	switch c {
	case CategoryDialect:
		return "dialect"
	case CategorySchema:
		return "schema"
	case CategoryAggregate:
		return "aggregate"
	case CategoryVocabulary:
		return "vocabulary"
	case CategoryRowLimit:
		return "row_limit"
	}
	return "unknown"
}

// Risk is how far a rule may move a query away from its literal text.
type Risk int

const (
	// RiskLow rules fix syntax or schema references only.
	RiskLow Risk = iota
	// RiskHigh rules change semantics based on the question.
	RiskHigh
)

// Rule is one rewrite. Apply returns the rewritten SQL and true, or the input
// and false when the rule does not match. Applying a rule to its own output
// must not change it again.
type Rule interface {
	Name() string
	Category() Category
	Risk() Risk
	Apply(sql string, rc *Context) (string, bool)
}

// Context is the read-only state shared by the rules of one run.
type Context struct {
	Question string
	Hints    Hints
	Catalog  *catalog.Catalog
	Dialect  dialect.Dialect
	Profile  Profile
	// DefaultRowCap bounds unbounded time-bucketed aggregates.
	DefaultRowCap int
	// MaxValueExpansion bounds the number of values a literal expands into.
	MaxValueExpansion int
}

// RuleApplication records one rule that changed the SQL.
type RuleApplication struct {
	RuleName   string `json:"rule_name"`
	BeforeHash string `json:"before_hash"`
	AfterHash  string `json:"after_hash"`
}

// Hash returns a short content hash of sql.
func Hash(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:8])
}

// Names returns the rule names of apps in order.
func Names(apps []RuleApplication) []string {
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = a.RuleName
	}
	return out
}

// Observer is notified of every rule application.
type Observer interface {
	RuleApplied(pipeline, rule string)
}

// Pipeline is a named, ordered list of rules.
type Pipeline struct {
	name     string
	rules    []Rule
	logger   *zap.Logger
	observer Observer
}

// NewPipeline returns a pipeline running rules in the given order.
func NewPipeline(name string, rules ...Rule) *Pipeline {
	return &Pipeline{name: name, rules: rules, logger: zap.NewNop()}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Rules returns the pipeline's rules.
func (p *Pipeline) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Run applies every rule permitted by rc.Profile in order.
func (p *Pipeline) Run(sql string, rc *Context) (string, []RuleApplication) {
	var applied []RuleApplication
	for _, rule := range p.rules {
		if rule.Risk() == RiskHigh && rc.Profile != Aggressive {
			continue
		}
		out, ok := rule.Apply(sql, rc)
		if !ok || out == sql {
			continue
		}
		app := RuleApplication{RuleName: rule.Name(), BeforeHash: Hash(sql), AfterHash: Hash(out)}
		applied = append(applied, app)
		p.logger.Debug("rewrite rule applied",
			zap.String("pipeline", p.name),
			zap.String("rule", rule.Name()),
			zap.String("category", rule.Category().String()),
			zap.String("before", app.BeforeHash),
			zap.String("after", app.AfterHash))
		if p.observer != nil {
			p.observer.RuleApplied(p.name, rule.Name())
		}
		sql = out
	}
	return sql, applied
}

// Engine is the main rewrite pipeline bound to a catalog.
type Engine struct {
	cat               *catalog.Catalog
	dialect           dialect.Dialect
	pipeline          *Pipeline
	defaultRowCap     int
	maxValueExpansion int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDialect overrides the catalog's dialect.
func WithDialect(d dialect.Dialect) Option {
	return func(e *Engine) { e.dialect = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.pipeline.logger = l }
}

// WithObserver registers an observer of rule applications.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.pipeline.observer = o }
}

// WithRules replaces the default rule set.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.pipeline.rules = rules }
}

// WithDefaultRowCap sets the cap applied to unbounded time-bucketed aggregates.
func WithDefaultRowCap(n int) Option {
	return func(e *Engine) { e.defaultRowCap = n }
}

// WithMaxValueExpansion bounds value-vocabulary expansion.
func WithMaxValueExpansion(n int) Option {
	return func(e *Engine) { e.maxValueExpansion = n }
}

// NewEngine returns an engine running DefaultRules.
func NewEngine(cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		cat:               cat,
		dialect:           cat.Dialect(),
		pipeline:          NewPipeline("postprocess", DefaultRules()...),
		defaultRowCap:     1000,
		maxValueExpansion: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Dialect returns the target dialect.
func (e *Engine) Dialect() dialect.Dialect { return e.dialect }

// Rules returns the engine's rules in order.
func (e *Engine) Rules() []Rule { return e.pipeline.Rules() }

// Context builds the rule context for question under profile.
func (e *Engine) Context(question string, profile Profile) *Context {
	return &Context{
		Question:          question,
		Hints:             ParseQuestion(question),
		Catalog:           e.cat,
		Dialect:           e.dialect,
		Profile:           profile,
		DefaultRowCap:     e.defaultRowCap,
		MaxValueExpansion: e.maxValueExpansion,
	}
}

// Apply runs the pipeline over sql.
func (e *Engine) Apply(question, sql string, profile Profile) (string, []RuleApplication) {
	return e.pipeline.Run(sql, e.Context(question, profile))
}

// RunPipeline runs p with the engine's context, logger and observer.
func (e *Engine) RunPipeline(p *Pipeline, question, sql string, profile Profile) (string, []RuleApplication) {
	bound := *p
	bound.logger = e.pipeline.logger
	bound.observer = e.pipeline.observer
	return bound.Run(sql, e.Context(question, profile))
}

// DefaultRules returns the main postprocess pipeline in application order.
func DefaultRules() []Rule {
	return []Rule{
		// dialect
		stripFences{},
		booleanLiterals{},
		intervalLiterals{},
		rowLimitSyntax{},
		lockingClause{},
		// schema
		renameIdentifiers{},
		keywordTable{},
		missingColumnJoin{},
		// aggregate
		countAlias{},
		nonNullTargets{},
		ratioDenominator{},
		deathTimeAlignment{},
		// vocabulary
		icdVersion{},
		valueExpansion{},
		unrequestedFirstStay{},
		unrequestedRowCap{},
		// row limit
		topNConsistency{},
		defaultRowCap{},
	}
}
