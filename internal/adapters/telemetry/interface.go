// Package telemetry records what the repair pipeline does: executions, repair
// rounds, rule applications, learned-fix traffic and final outcomes.
package telemetry

import (
	"context"
	"time"
)

// Telemetry defines the telemetry adapter interface. It also satisfies the
// rewrite engine's observer contract through RuleApplied.
type Telemetry interface {
	// RecordExecution records one statement sent to the database.
	RecordExecution(ctx context.Context, info ExecutionInfo)

	// RecordRound records one orchestrator round.
	RecordRound(ctx context.Context, info RoundInfo)

	// RecordOutcome records the end of an orchestrator run.
	RecordOutcome(ctx context.Context, info OutcomeInfo)

	// RecordLearnedFix records a learned-fix cache event.
	RecordLearnedFix(ctx context.Context, event LearnedFixEvent)

	// RuleApplied records a rewrite rule that changed a statement.
	RuleApplied(pipeline, rule string)

	// Flush flushes any buffered telemetry data.
	Flush(ctx context.Context) error

	// Close closes the telemetry adapter.
	Close(ctx context.Context) error
}

// ExecutionInfo describes one execution.
type ExecutionInfo struct {
	Duration time.Duration
	Success  bool
	Rows     int
	// ErrorKind is the classified error kind of a failed execution.
	ErrorKind string
}

// RoundInfo describes one repair round.
type RoundInfo struct {
	Round int
	// Source is the repair source that produced the round's candidate.
	Source string
	// Changed reports whether the round produced new SQL.
	Changed bool
}

// OutcomeInfo describes a finished run.
type OutcomeInfo struct {
	Status   string
	Rounds   int
	Duration time.Duration
}

// LearnedFixEvent is a learned-fix cache event.
type LearnedFixEvent string

const (
	LearnedFixHit   LearnedFixEvent = "hit"
	LearnedFixMiss  LearnedFixEvent = "miss"
	LearnedFixWrite LearnedFixEvent = "write"
)

// Config holds telemetry configuration.
type Config struct {
	// Type is the telemetry type (noop, memory, prometheus).
	Type string

	// Namespace prefixes every metric name.
	Namespace string
}
