// Package observability is the facade SPEC_FULL.md's "observability
// facade" (§1 Non-goals: "metrics sinks... the core emits into an
// observability facade") components emit into — a thin wrapper tying
// together logging, Prometheus metrics, and host resource sampling so
// callers depend on one type instead of three packages directly.
package observability

import (
	"context"
	"time"

	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/infrastructure/metrics"
)

// Facade bundles the structured logger and metrics registry a component
// needs, plus convenience recorders for the metrics side; the recorders do
// not write log entries.
type Facade struct {
	Log     *logging.Logger
	Metrics *metrics.Metrics
	service string
}

// New builds a Facade for serviceName over metrics m and logger log.
func New(serviceName string, log *logging.Logger, m *metrics.Metrics) *Facade {
	return &Facade{Log: log, Metrics: m, service: serviceName}
}

// RecordActorMessage records a processed actor message metric; it does not log.
func (f *Facade) RecordActorMessage(ctx context.Context, actorType, status string, duration time.Duration) {
	if f.Metrics != nil {
		f.Metrics.RecordActorMessage(f.service, actorType, status, duration)
	}
}

// RecordActorRestart logs (via LogActorRestart, the caller's responsibility)
// and records a restart metric.
func (f *Facade) RecordActorRestart(actorType string) {
	if f.Metrics != nil {
		f.Metrics.RecordActorRestart(f.service, actorType)
	}
}

// RecordSagaCompletion records a saga's terminal state.
func (f *Facade) RecordSagaCompletion(sagaName, state string) {
	if f.Metrics != nil {
		f.Metrics.RecordSagaCompletion(f.service, sagaName, state)
	}
}

// RecordError records a typed error occurrence.
func (f *Facade) RecordError(errorType, operation string) {
	if f.Metrics != nil {
		f.Metrics.RecordError(f.service, errorType, operation)
	}
}
