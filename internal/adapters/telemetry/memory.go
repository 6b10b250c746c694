package telemetry

import (
	"context"
	"sync"
)

// MemoryTelemetry keeps counters in memory. The CLI uses it to print a run
// summary and tests use it to assert on what happened.
type MemoryTelemetry struct {
	mu         sync.Mutex
	executions int
	failures   map[string]int
	rounds     map[string]int
	rules      map[string]int
	outcomes   map[string]int
	learnedFix map[LearnedFixEvent]int
	rowsTotal  int
}

// NewMemoryTelemetry returns an empty in-memory recorder.
func NewMemoryTelemetry() *MemoryTelemetry {
	return &MemoryTelemetry{
		failures:   make(map[string]int),
		rounds:     make(map[string]int),
		rules:      make(map[string]int),
		outcomes:   make(map[string]int),
		learnedFix: make(map[LearnedFixEvent]int),
	}
}

func (m *MemoryTelemetry) RecordExecution(_ context.Context, info ExecutionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.rowsTotal += info.Rows
	if !info.Success {
		m.failures[info.ErrorKind]++
	}
}

func (m *MemoryTelemetry) RecordRound(_ context.Context, info RoundInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[info.Source]++
}

func (m *MemoryTelemetry) RecordOutcome(_ context.Context, info OutcomeInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[info.Status]++
}

func (m *MemoryTelemetry) RecordLearnedFix(_ context.Context, event LearnedFixEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learnedFix[event]++
}

func (m *MemoryTelemetry) RuleApplied(pipeline, rule string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[pipeline+"/"+rule]++
}

func (m *MemoryTelemetry) Flush(context.Context) error { return nil }
func (m *MemoryTelemetry) Close(context.Context) error { return nil }

// Snapshot is a copy of the recorded counters.
type Snapshot struct {
	Executions int
	Rows       int
	Failures   map[string]int
	Rounds     map[string]int
	Rules      map[string]int
	Outcomes   map[string]int
	LearnedFix map[LearnedFixEvent]int
}

// Snapshot returns a copy of the counters.
func (m *MemoryTelemetry) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Executions: m.executions,
		Rows:       m.rowsTotal,
		Failures:   copyCounts(m.failures),
		Rounds:     copyCounts(m.rounds),
		Rules:      copyCounts(m.rules),
		Outcomes:   copyCounts(m.outcomes),
		LearnedFix: copyCounts(m.learnedFix),
	}
}

func copyCounts[K comparable](in map[K]int) map[K]int {
	out := make(map[K]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Telemetry = (*MemoryTelemetry)(nil)
