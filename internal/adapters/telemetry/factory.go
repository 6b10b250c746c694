package telemetry

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownSink is returned for a telemetry type no sink implements.
var ErrUnknownSink = errors.New("unknown telemetry sink")

// Sink names a telemetry backend.
type Sink string

const (
	SinkNoop       Sink = "noop"
	SinkMemory     Sink = "memory"
	SinkPrometheus Sink = "prometheus"
)

// NewTelemetry returns the sink config names. A nil config or empty type
// yields the no-op sink.
func NewTelemetry(config *Config) (Telemetry, error) {
	if config == nil || config.Type == "" {
		return NewNoopTelemetry(), nil
	}
	switch Sink(config.Type) {
	case SinkNoop:
		return NewNoopTelemetry(), nil
	case SinkMemory:
		return NewMemoryTelemetry(), nil
	case SinkPrometheus:
		return NewPrometheusTelemetry(config), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSink, config.Type)
}

// MetricsHandler returns the scrape handler of t. ok is false for sinks that
// keep nothing worth exposing.
func MetricsHandler(t Telemetry) (h http.Handler, ok bool) {
	p, ok := t.(*PrometheusTelemetry)
	if !ok {
		return nil, false
	}
	return p.Handler(), true
}
