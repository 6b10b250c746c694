// Package service implements application services.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/core/compiler"
	"github.com/satishbabariya/cohortsql/internal/core/intent"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
)

// ErrNoSteps is returned when a specification has nothing to compile.
var ErrNoSteps = errors.New("cohort specification has no steps")

// CohortService compiles cohort specifications and runs them.
type CohortService struct {
	compiler     *compiler.Compiler
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

// NewCohortService creates a new cohort service.
func NewCohortService(comp *compiler.Compiler, orch *orchestrator.Orchestrator, logger *zap.Logger) *CohortService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CohortService{
		compiler:     comp,
		orchestrator: orch,
		logger:       logger,
	}
}

// StepCount is one row of a diagnostic query.
type StepCount struct {
	Label string `json:"label"`
	Order int    `json:"order"`
	Rows  int64  `json:"rows"`
}

// CohortRun is the result of running a compiled cohort.
type CohortRun struct {
	Bundle      *compiler.Bundle      `json:"bundle"`
	Size        int64                 `json:"size"`
	Steps       []StepCount           `json:"steps"`
	Count       *orchestrator.Outcome `json:"count"`
	Diagnostics *orchestrator.Outcome `json:"diagnostics"`
	// Warnings holds the compiler's warnings followed by drift warnings.
	Warnings []string `json:"warnings,omitempty"`
}

// Compile validates and compiles spec.
func (s *CohortService) Compile(ctx context.Context, spec *intent.Spec) (*compiler.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec == nil || len(spec.Steps) == 0 {
		return nil, ErrNoSteps
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cohort specification: %w", err)
	}
	b := s.compiler.CompileSpec(spec)
	for _, w := range b.Warnings {
		s.logger.Warn("compile warning", zap.String("warning", w))
	}
	s.logger.Debug("compiled cohort", zap.Strings("ctes", b.CTEs))
	return b, nil
}

// Run compiles spec and executes its count and diagnostic queries.
func (s *CohortService) Run(ctx context.Context, spec *intent.Spec) (*CohortRun, error) {
	b, err := s.Compile(ctx, spec)
	if err != nil {
		return nil, err
	}
	run := &CohortRun{Bundle: b, Warnings: append([]string(nil), b.Warnings...)}

	run.Count, err = s.orchestrator.Run(ctx, orchestrator.Request{SQL: b.CountSQL})
	if err != nil {
		return run, fmt.Errorf("count query failed: %w", err)
	}
	size, ok := run.Count.Result.Scalar()
	if !ok {
		return run, fmt.Errorf("count query returned no count")
	}
	run.Size = size

	run.Diagnostics, err = s.orchestrator.Run(ctx, orchestrator.Request{SQL: b.DiagnosticSQL})
	if err != nil {
		return run, fmt.Errorf("diagnostic query failed: %w", err)
	}
	run.Steps = stepCounts(run.Diagnostics)
	for _, w := range driftWarnings(run.Steps) {
		s.logger.Warn("semantic drift", zap.String("warning", w))
		run.Warnings = append(run.Warnings, w)
	}
	return run, nil
}

func stepCounts(o *orchestrator.Outcome) []StepCount {
	res := o.Result
	if res == nil {
		return nil
	}
	out := make([]StepCount, 0, len(res.Rows))
	for i, row := range res.Rows {
		if len(row) < 3 {
			continue
		}
		order, _ := res.Int(i, 1)
		rows, _ := res.Int(i, 2)
		out = append(out, StepCount{Label: label(row[0]), Order: int(order), Rows: rows})
	}
	return out
}

func label(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// driftWarnings reports steps whose row count grew. Filters only ever
// narrow the cohort, so growth means a step joined a wider source than its
// predecessor.
func driftWarnings(steps []StepCount) []string {
	var out []string
	for i := 1; i < len(steps); i++ {
		prev, cur := steps[i-1], steps[i]
		if cur.Rows > prev.Rows {
			out = append(out, fmt.Sprintf("semantic drift: step %q has %d rows, more than %q (%d)",
				cur.Label, cur.Rows, prev.Label, prev.Rows))
		}
	}
	return out
}
