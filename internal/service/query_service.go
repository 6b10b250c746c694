package service

import (
	"context"
	"errors"

	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
	"github.com/satishbabariya/cohortsql/internal/core/scoping"
)

// QueryService runs free-form SQL through the rewrite engine and the
// orchestrator.
type QueryService struct {
	engine       *rewrite.Engine
	orchestrator *orchestrator.Orchestrator
	composer     *scoping.Composer
}

// NewQueryService creates a new query service.
func NewQueryService(
	engine *rewrite.Engine,
	orch *orchestrator.Orchestrator,
	composer *scoping.Composer,
) *QueryService {
	return &QueryService{
		engine:       engine,
		orchestrator: orch,
		composer:     composer,
	}
}

// ErrNoSharedKey is returned when a query cannot be scoped to a cohort.
var ErrNoSharedKey = errors.New("query shares no identifier with the cohort")

// RewriteResult is the output of a one-shot rewrite.
type RewriteResult struct {
	SQL         string                    `json:"sql"`
	Profile     rewrite.Profile           `json:"profile"`
	Applied     []rewrite.RuleApplication `json:"applied"`
	Recommended rewrite.Profile           `json:"recommended"`
	RiskSignals []string                  `json:"risk_signals,omitempty"`
}

// Execute runs sql on behalf of question with bounded repair.
func (s *QueryService) Execute(ctx context.Context, question, sql string) (*orchestrator.Outcome, error) {
	return s.orchestrator.Run(ctx, orchestrator.Request{Question: question, SQL: sql})
}

// Rewrite normalizes sql without executing it.
func (s *QueryService) Rewrite(question, sql string, aggressive bool) RewriteResult {
	profile := rewrite.Relaxed
	if aggressive {
		profile = rewrite.Aggressive
	}
	recommended, signals := s.engine.Recommend(question, sql)
	out, applied := s.engine.Apply(question, sql, profile)
	return RewriteResult{
		SQL:         out,
		Profile:     profile,
		Applied:     applied,
		Recommended: recommended,
		RiskSignals: signals,
	}
}

// Scope restricts base to the entities of cohort.
func (s *QueryService) Scope(base, cohort string) (scoping.Scoped, bool) {
	return s.composer.Scope(base, cohort)
}

// ExecuteScoped scopes base to cohort and runs the result.
func (s *QueryService) ExecuteScoped(ctx context.Context, question, base, cohort string) (*orchestrator.Outcome, scoping.Scoped, error) {
	scoped, ok := s.Scope(base, cohort)
	if !ok {
		return nil, scoped, ErrNoSharedKey
	}
	out, err := s.Execute(ctx, question, scoped.SQL)
	return out, scoped, err
}
