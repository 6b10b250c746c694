// Package orchestrator drives candidate SQL to a successful execution. It is
// a state machine over bounded repair rounds: each round normalizes the
// candidate with the rewrite engine, executes it, and on failure repairs it
// from the learned-fix store, a template, or the repair collaborator.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/adapters/telemetry"
	"github.com/satishbabariya/cohortsql/internal/core/learnedfix"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
)

// ErrExhausted is returned when the repair budgets run out.
var ErrExhausted = errors.New("repair budget exhausted")

// State is an orchestrator state.
type State string

const (
	StateSeed             State = "seed"
	StateNormalize        State = "normalize"
	StateExecute          State = "execute"
	StateSuccess          State = "success"
	StateErrorRepair      State = "error_repair"
	StateZeroResultRepair State = "zero_result_repair"
	StateExhausted        State = "exhausted"
	StateRejected         State = "rejected"
)

// Status is the terminal status of a run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusExhausted Status = "exhausted"
	StatusRejected  Status = "rejected"
)

// Source says what produced a round's candidate.
type Source string

const (
	SourcePostprocess      Source = "postprocess"
	SourceIntentGuard      Source = "intent_guard"
	SourceLearnedRule      Source = "learned_rule"
	SourceTemplateRepair   Source = "template_repair"
	SourceLLMRepair        Source = "llm_repair"
	SourceZeroResultRepair Source = "zero_result_repair"
)

// Attempt records one change to the candidate. Attempts are appended and
// never modified.
type Attempt struct {
	Round        int                       `json:"round"`
	Source       Source                    `json:"source"`
	Error        string                    `json:"error,omitempty"`
	AppliedRules []rewrite.RuleApplication `json:"applied_rules,omitempty"`
	SQL          string                    `json:"sql"`
}

// Transition is one state change.
type Transition struct {
	Round int   `json:"round"`
	From  State `json:"from"`
	To    State `json:"to"`
}

// Request asks for sql to be executed on behalf of question.
type Request struct {
	Question string
	SQL      string
}

// Outcome is the result of a run.
type Outcome struct {
	RunID       string           `json:"run_id"`
	Status      Status           `json:"status"`
	FinalSQL    string           `json:"final_sql"`
	Result      *database.Result `json:"result,omitempty"`
	Profile     rewrite.Profile  `json:"profile"`
	RiskSignals []string         `json:"risk_signals,omitempty"`
	Attempts    []Attempt        `json:"attempts"`
	Transitions []Transition     `json:"transitions"`
	Executions  int              `json:"executions"`
	LastError   error            `json:"-"`
	// LearnedFixes are the signatures written to the learned-fix store.
	LearnedFixes []string `json:"learned_fixes,omitempty"`
}

// RepairRequest is what the repair collaborator is given.
type RepairRequest struct {
	Question string
	SQL      string
	// Error is the classified failure, or nil for an empty result.
	Error *repair.DBError
	// Reason describes the failure in words.
	Reason string
	// Broaden asks for wider filters that keep the question's intent.
	Broaden bool
}

// Repairer rewrites failing SQL. Its output is untrusted.
type Repairer interface {
	Repair(ctx context.Context, req RepairRequest) (string, error)
}

// RepairerFunc adapts a function to Repairer.
type RepairerFunc func(ctx context.Context, req RepairRequest) (string, error)

// Repair calls f.
func (f RepairerFunc) Repair(ctx context.Context, req RepairRequest) (string, error) {
	return f(ctx, req)
}

// Orchestrator runs requests. It is safe for concurrent use.
type Orchestrator struct {
	engine    *rewrite.Engine
	executor  database.Executor
	repairer  Repairer
	store     learnedfix.Store
	templates *repair.Templates
	guard     *rewrite.Pipeline
	relaxer   *rewrite.Pipeline
	telemetry telemetry.Telemetry
	logger    *zap.Logger

	maxErrorRepairs      int
	maxZeroResultRepairs int
	executionTimeout     time.Duration
	repairTimeout        time.Duration

	repairs singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRepairer sets the repair collaborator.
func WithRepairer(r Repairer) Option {
	return func(o *Orchestrator) { o.repairer = r }
}

// WithStore sets the learned-fix store.
func WithStore(s learnedfix.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithBudgets sets the error-repair and zero-result-repair round budgets.
func WithBudgets(errorRepairs, zeroResultRepairs int) Option {
	return func(o *Orchestrator) {
		o.maxErrorRepairs = errorRepairs
		o.maxZeroResultRepairs = zeroResultRepairs
	}
}

// WithTimeouts sets the per-call execution and repair timeouts.
func WithTimeouts(execution, repairCall time.Duration) Option {
	return func(o *Orchestrator) {
		o.executionTimeout = execution
		o.repairTimeout = repairCall
	}
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(o *Orchestrator) { o.telemetry = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithGuard replaces the intent-guard pipeline.
func WithGuard(p *rewrite.Pipeline) Option {
	return func(o *Orchestrator) { o.guard = p }
}

// WithRelaxer replaces the zero-result relax pipeline.
func WithRelaxer(p *rewrite.Pipeline) Option {
	return func(o *Orchestrator) { o.relaxer = p }
}

// WithTemplates replaces the template repairs.
func WithTemplates(t *repair.Templates) Option {
	return func(o *Orchestrator) { o.templates = t }
}

// New returns an orchestrator executing through executor.
func New(engine *rewrite.Engine, executor database.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:               engine,
		executor:             executor,
		store:                learnedfix.NewMemory(),
		templates:            repair.New(engine.Catalog(), repair.WithDialect(engine.Dialect())),
		guard:                rewrite.Guard(),
		relaxer:              rewrite.Relaxer(),
		telemetry:            telemetry.NewNoopTelemetry(),
		logger:               zap.NewNop(),
		maxErrorRepairs:      3,
		maxZeroResultRepairs: 2,
		executionTimeout:     30 * time.Second,
		repairTimeout:        60 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Budgets returns the error-repair and zero-result-repair budgets.
func (o *Orchestrator) Budgets() (int, int) {
	return o.maxErrorRepairs, o.maxZeroResultRepairs
}

// Store returns the learned-fix store.
func (o *Orchestrator) Store() learnedfix.Store { return o.store }
