package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusTelemetry implements Telemetry with Prometheus collectors on a
// private registry.
type PrometheusTelemetry struct {
	registry          *prometheus.Registry
	executionDuration *prometheus.HistogramVec
	executionRows     prometheus.Histogram
	rounds            *prometheus.CounterVec
	rules             *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	outcomeRounds     prometheus.Histogram
	learnedFixes      *prometheus.CounterVec
}

// NewPrometheusTelemetry creates a new Prometheus telemetry adapter.
func NewPrometheusTelemetry(config *Config) *PrometheusTelemetry {
	ns := "cohortsql"
	if config != nil && config.Namespace != "" {
		ns = config.Namespace
	}
	p := &PrometheusTelemetry{
		registry: prometheus.NewRegistry(),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "execution_duration_seconds",
			Help:      "Duration of statements sent to the database.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"status", "error_kind"}),
		executionRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "execution_rows",
			Help:      "Rows returned per successful execution.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "repair_rounds_total",
			Help:      "Orchestrator rounds by repair source.",
		}, []string{"source", "changed"}),
		rules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rewrite_rules_applied_total",
			Help:      "Rewrite rule applications by pipeline and rule.",
		}, []string{"pipeline", "rule"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_total",
			Help:      "Finished orchestrator runs by status.",
		}, []string{"status"}),
		outcomeRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_rounds",
			Help:      "Rounds per orchestrator run.",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		}),
		learnedFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "learned_fix_events_total",
			Help:      "Learned-fix cache hits, misses and writes.",
		}, []string{"event"}),
	}
	p.registry.MustRegister(p.executionDuration, p.executionRows, p.rounds, p.rules,
		p.outcomes, p.outcomeRounds, p.learnedFixes)
	return p
}

func (p *PrometheusTelemetry) RecordExecution(_ context.Context, info ExecutionInfo) {
	status := "success"
	if !info.Success {
		status = "error"
	}
	p.executionDuration.WithLabelValues(status, info.ErrorKind).Observe(info.Duration.Seconds())
	if info.Success {
		p.executionRows.Observe(float64(info.Rows))
	}
}

func (p *PrometheusTelemetry) RecordRound(_ context.Context, info RoundInfo) {
	changed := "false"
	if info.Changed {
		changed = "true"
	}
	p.rounds.WithLabelValues(info.Source, changed).Inc()
}

func (p *PrometheusTelemetry) RecordOutcome(_ context.Context, info OutcomeInfo) {
	p.outcomes.WithLabelValues(info.Status).Inc()
	p.outcomeRounds.Observe(float64(info.Rounds))
}

func (p *PrometheusTelemetry) RecordLearnedFix(_ context.Context, event LearnedFixEvent) {
	p.learnedFixes.WithLabelValues(string(event)).Inc()
}

func (p *PrometheusTelemetry) RuleApplied(pipeline, rule string) {
	p.rules.WithLabelValues(pipeline, rule).Inc()
}

// Flush is a no-op; collectors are scraped.
func (p *PrometheusTelemetry) Flush(context.Context) error { return nil }

// Close is a no-op.
func (p *PrometheusTelemetry) Close(context.Context) error { return nil }

// Registry returns the registry holding the collectors.
func (p *PrometheusTelemetry) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusTelemetry) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ Telemetry = (*PrometheusTelemetry)(nil)
