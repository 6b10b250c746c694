package orchestrator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/adapters/telemetry"
	"github.com/satishbabariya/cohortsql/internal/core/learnedfix"
	"github.com/satishbabariya/cohortsql/internal/core/repair"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
	"github.com/satishbabariya/cohortsql/internal/core/sqlsafe"
)

// run is the mutable state of one Run call. Attempts and transitions are
// only ever appended.
type run struct {
	o      *Orchestrator
	req    Request
	hints  rewrite.Hints
	logger *zap.Logger
	out    *Outcome

	sql   string
	round int
	// seen holds how each executed candidate failed, by signature.
	seen map[string]failed

	errorRepairs int
	zeroRepairs  int
	relaxed      bool

	// failure is the classified error of the last failed execution.
	failure *repair.DBError
	lastErr error

	// learnFrom is the failing SQL an error-driven repair call fixed.
	learnFrom  string
	learnError string
}

// failed is the outcome of one failed execution.
type failed struct {
	state   State
	failure *repair.DBError
	err     error
	result  *database.Result
}

// Run drives req.SQL to a successful execution. The returned error is nil on
// success, wraps sqlsafe.ErrUnsafeSQL when a candidate is rejected, and wraps
// ErrExhausted when the budgets run out. The outcome is returned in every
// case except a cancelled parent context.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	r := o.newRun(req)

	state := StateSeed
	for !terminal(state) {
		var (
			next State
			err  error
		)
		switch state {
		case StateSeed:
			next = r.seed(ctx)
		case StateNormalize:
			next = r.normalize()
		case StateExecute:
			next, err = r.execute(ctx)
		case StateErrorRepair:
			next, err = r.errorRepair(ctx)
		case StateZeroResultRepair:
			next, err = r.zeroResultRepair(ctx)
		default:
			err = fmt.Errorf("orchestrator: unexpected state %q", state)
		}
		if err != nil {
			r.logger.Warn("run aborted", zap.String("state", string(state)), zap.Error(err))
			return r.out, err
		}
		r.out.Transitions = append(r.out.Transitions, Transition{Round: r.round, From: state, To: next})
		r.logger.Debug("transition",
			zap.Int("round", r.round),
			zap.String("from", string(state)),
			zap.String("to", string(next)))
		state = next
	}

	r.out.FinalSQL = r.sql
	var err error
	switch state {
	case StateSuccess:
		r.out.Status = StatusSuccess
		r.learn(ctx)
	case StateRejected:
		r.out.Status = StatusRejected
		r.out.LastError = r.lastErr
		err = r.lastErr
	case StateExhausted:
		r.out.Status = StatusExhausted
		r.out.LastError = r.lastErr
		err = fmt.Errorf("%w: %w", ErrExhausted, r.lastErr)
	}

	o.telemetry.RecordOutcome(ctx, telemetry.OutcomeInfo{
		Status:   string(r.out.Status),
		Rounds:   r.round,
		Duration: time.Since(start),
	})
	r.logger.Info("run finished",
		zap.String("status", string(r.out.Status)),
		zap.Int("rounds", r.round),
		zap.Int("executions", r.out.Executions),
		zap.Int("attempts", len(r.out.Attempts)))
	return r.out, err
}

func (o *Orchestrator) newRun(req Request) *run {
	r := &run{
		o:     o,
		req:   req,
		hints: rewrite.ParseQuestion(req.Question),
		sql:   req.SQL,
		seen:  make(map[string]failed),
		out:   &Outcome{RunID: uuid.NewString()},
	}
	r.logger = o.logger.With(zap.String("run_id", r.out.RunID))
	return r
}

func terminal(s State) bool {
	return s == StateSuccess || s == StateExhausted || s == StateRejected
}

func (r *run) record(a Attempt) {
	r.out.Attempts = append(r.out.Attempts, a)
	r.o.telemetry.RecordRound(context.Background(), telemetry.RoundInfo{
		Round:   a.Round,
		Source:  string(a.Source),
		Changed: true,
	})
}

// fresh reports whether candidate is usable as the next SQL after failing.
func (r *run) fresh(candidate, failing string) bool {
	candidate = strings.TrimSpace(candidate)
	return candidate != "" && candidate != strings.TrimSpace(failing) && !r.executed(candidate)
}

func (r *run) executed(sql string) bool {
	_, ok := r.seen[repair.Signature(sql)]
	return ok
}

// lookup returns the learned fix for sql, touching it on a hit.
func (r *run) lookup(ctx context.Context, sql string) (string, bool) {
	sig := repair.Signature(sql)
	fix, err := r.o.store.Get(ctx, sig)
	switch {
	case errors.Is(err, learnedfix.ErrNotFound):
		r.o.telemetry.RecordLearnedFix(ctx, telemetry.LearnedFixMiss)
		return "", false
	case err != nil:
		r.logger.Warn("learned fix lookup failed", zap.Error(err))
		return "", false
	}
	if err := r.o.store.Touch(ctx, sig); err != nil {
		r.logger.Warn("learned fix touch failed", zap.String("signature", sig), zap.Error(err))
	}
	r.o.telemetry.RecordLearnedFix(ctx, telemetry.LearnedFixHit)
	r.logger.Info("learned fix hit", zap.String("signature", sig))
	return fix.FixedSQL, true
}

func (r *run) seed(ctx context.Context) State {
	if fixed, ok := r.lookup(ctx, r.sql); ok && r.fresh(fixed, r.sql) {
		r.sql = fixed
		r.record(Attempt{Round: 0, Source: SourceLearnedRule, SQL: fixed})
	}
	return StateNormalize
}

func (r *run) normalize() State {
	r.round++
	e := r.o.engine
	profile := rewrite.Aggressive
	if r.round == 1 {
		r.out.Profile, r.out.RiskSignals = e.Recommend(r.req.Question, r.sql)
		profile = r.out.Profile
	}
	out, apps := e.Apply(r.req.Question, r.sql, profile)
	if len(apps) > 0 {
		r.record(Attempt{Round: r.round, Source: SourcePostprocess, AppliedRules: apps, SQL: out})
	}
	if r.round > 1 {
		guarded, gapps := e.RunPipeline(r.o.guard, r.req.Question, out, rewrite.Aggressive)
		if len(gapps) > 0 {
			r.record(Attempt{Round: r.round, Source: SourceIntentGuard, AppliedRules: gapps, SQL: guarded})
		}
		out = guarded
	}
	r.sql = out
	return StateExecute
}

func (r *run) execute(ctx context.Context) (State, error) {
	if err := sqlsafe.Check(r.sql); err != nil {
		r.lastErr = err
		r.logger.Warn("candidate rejected", zap.Int("round", r.round), zap.Error(err))
		return StateRejected, nil
	}
	sig := repair.Signature(r.sql)
	if f, ok := r.seen[sig]; ok {
		// The same candidate already failed; re-enter its own repair state
		// so the budget is still consumed.
		r.failure, r.lastErr, r.out.Result = f.failure, f.err, f.result
		return f.state, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, r.o.executionTimeout)
	res, err := r.o.executor.Execute(execCtx, r.sql)
	cancel()
	r.out.Executions++
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		if errors.Is(err, sqlsafe.ErrUnsafeSQL) {
			r.lastErr = err
			return StateRejected, nil
		}
		r.failure = repair.Classify(err)
		r.lastErr = err
		r.out.Result = nil
		r.seen[sig] = failed{state: StateErrorRepair, failure: r.failure, err: err}
		r.logger.Debug("execution failed",
			zap.Int("round", r.round),
			zap.String("kind", string(r.failure.Kind)),
			zap.Error(err))
		return StateErrorRepair, nil
	}
	r.out.Result = res
	if res.RowCount == 0 && suspiciouslyEmpty(r.hints, r.sql) {
		r.failure = nil
		r.lastErr = repair.ErrZeroRows
		r.seen[sig] = failed{state: StateZeroResultRepair, err: repair.ErrZeroRows, result: res}
		return StateZeroResultRepair, nil
	}
	return StateSuccess, nil
}

func (r *run) errorRepair(ctx context.Context) (State, error) {
	if r.errorRepairs >= r.o.maxErrorRepairs {
		return StateExhausted, nil
	}
	r.errorRepairs++
	failing := r.sql
	msg := errorText(r.failure, r.lastErr)

	if fixed, ok := r.lookup(ctx, failing); ok && r.fresh(fixed, failing) {
		r.sql = fixed
		r.forgetRepairCall()
		r.record(Attempt{Round: r.round, Source: SourceLearnedRule, Error: msg, SQL: fixed})
		return StateNormalize, nil
	}

	if r.failure != nil && repair.Supports(r.failure.Kind) && r.o.templates != nil {
		if fixed, ok := r.o.templates.Repair(r.failure, failing); ok && r.fresh(fixed, failing) {
			r.sql = fixed
			r.forgetRepairCall()
			r.record(Attempt{Round: r.round, Source: SourceTemplateRepair, Error: msg, SQL: fixed})
			return StateNormalize, nil
		}
	}

	fixed, err := r.callRepairer(ctx, RepairRequest{
		Question: r.req.Question,
		SQL:      failing,
		Error:    r.failure,
		Reason:   msg,
	})
	if err != nil {
		return "", err
	}
	if r.fresh(fixed, failing) {
		r.sql = strings.TrimSpace(fixed)
		r.learnFrom = failing
		r.learnError = repair.ErrorSignature(r.failure)
		r.record(Attempt{Round: r.round, Source: SourceLLMRepair, Error: msg, SQL: r.sql})
	}
	// With nothing new, the next round still re-normalizes under the
	// aggressive profile.
	return StateNormalize, nil
}

func (r *run) zeroResultRepair(ctx context.Context) (State, error) {
	if r.zeroRepairs >= r.o.maxZeroResultRepairs {
		return StateExhausted, nil
	}
	r.zeroRepairs++
	failing := r.sql
	msg := repair.ErrZeroRows.Error()

	if !r.relaxed && r.o.relaxer != nil {
		r.relaxed = true
		out, apps := r.o.engine.RunPipeline(r.o.relaxer, r.req.Question, failing, rewrite.Aggressive)
		if len(apps) > 0 && r.fresh(out, failing) {
			r.sql = out
			r.forgetRepairCall()
			r.record(Attempt{Round: r.round, Source: SourceZeroResultRepair, Error: msg, AppliedRules: apps, SQL: out})
			return StateNormalize, nil
		}
	}

	fixed, err := r.callRepairer(ctx, RepairRequest{
		Question: r.req.Question,
		SQL:      failing,
		Reason:   msg,
		Broaden:  true,
	})
	if err != nil {
		return "", err
	}
	if r.fresh(fixed, failing) {
		r.sql = strings.TrimSpace(fixed)
		r.record(Attempt{Round: r.round, Source: SourceLLMRepair, Error: msg, SQL: r.sql})
	}
	return StateNormalize, nil
}

// forgetRepairCall drops the pending learned fix once a later repair that
// did not come from the collaborator takes over.
func (r *run) forgetRepairCall() {
	r.learnFrom, r.learnError = "", ""
}

// callRepairer asks the repair collaborator for new SQL. Identical concurrent
// requests, same question included, share one call. A failed call yields "" so the round falls through;
// only a cancelled parent context is returned as an error.
func (r *run) callRepairer(ctx context.Context, req RepairRequest) (string, error) {
	if r.o.repairer == nil {
		return "", nil
	}
	question := sha256.Sum256([]byte(strings.TrimSpace(req.Question)))
	key := fmt.Sprintf("%x|%s|%s|%t", question[:16], repair.ErrorSignature(req.Error), repair.Signature(req.SQL), req.Broaden)
	v, err, shared := r.o.repairs.Do(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(ctx, r.o.repairTimeout)
		defer cancel()
		return r.o.repairer.Repair(rctx, req)
	})
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		r.logger.Warn("repair call failed", zap.Int("round", r.round), zap.Error(err))
		return "", nil
	}
	if shared {
		r.logger.Debug("repair call shared", zap.String("key", key))
	}
	return v.(string), nil
}

// learn stores the final SQL of a run that an error-driven repair call fixed,
// keyed by the SQL handed to the collaborator and by the request SQL.
func (r *run) learn(ctx context.Context) {
	if r.learnFrom == "" {
		return
	}
	now := time.Now().UTC()
	for _, from := range []string{r.learnFrom, r.req.SQL} {
		sig := repair.Signature(from)
		if containsString(r.out.LearnedFixes, sig) || strings.TrimSpace(from) == strings.TrimSpace(r.sql) {
			continue
		}
		fix := learnedfix.Fix{
			Signature:      sig,
			FailedSQL:      from,
			FixedSQL:       r.sql,
			ErrorSignature: r.learnError,
			Source:         string(SourceLLMRepair),
			CreatedAt:      now,
		}
		if err := r.o.store.Upsert(ctx, sig, fix); err != nil {
			r.logger.Warn("learned fix write failed", zap.String("signature", sig), zap.Error(err))
			continue
		}
		r.out.LearnedFixes = append(r.out.LearnedFixes, sig)
		r.o.telemetry.RecordLearnedFix(ctx, telemetry.LearnedFixWrite)
		r.logger.Info("learned fix written", zap.String("signature", sig))
	}
}

func errorText(e *repair.DBError, err error) string {
	switch {
	case e != nil:
		return e.Error()
	case err != nil:
		return err.Error()
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
