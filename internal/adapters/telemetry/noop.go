package telemetry

import (
	"context"
)

// NoopTelemetry discards everything.
type NoopTelemetry struct{}

// NewNoopTelemetry creates a new no-op telemetry adapter.
func NewNoopTelemetry() *NoopTelemetry {
	return &NoopTelemetry{}
}

func (n *NoopTelemetry) RecordExecution(context.Context, ExecutionInfo)    {}
func (n *NoopTelemetry) RecordRound(context.Context, RoundInfo)            {}
func (n *NoopTelemetry) RecordOutcome(context.Context, OutcomeInfo)        {}
func (n *NoopTelemetry) RecordLearnedFix(context.Context, LearnedFixEvent) {}
func (n *NoopTelemetry) RuleApplied(string, string)                        {}
func (n *NoopTelemetry) Flush(context.Context) error                       { return nil }
func (n *NoopTelemetry) Close(context.Context) error                       { return nil }

var _ Telemetry = (*NoopTelemetry)(nil)
