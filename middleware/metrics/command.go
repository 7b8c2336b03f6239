package metrics

import (
	"context"
	"errors"
	"time"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

var _ cqrs.MetricsCollector = (*Metrics)(nil)

// CommandMiddleware times each command, tracks it as in flight while it runs
// and counts it by outcome. A failure reported only through the result's
// Error field still counts as an error.
func (m *Metrics) CommandMiddleware() cqrs.Middleware {
	return func(next cqrs.MiddlewareFunc) cqrs.MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd cqrs.Command) (cqrs.CommandResult, error) {
			cmdType := cmd.CommandType()
			inFlight := m.commandsInFlight.WithLabelValues(m.serviceName, cmdType)
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			result, err := next(ctx, aggregateID, cmd)

			failure := err
			if failure == nil {
				failure = result.Error
			}
			m.RecordCommand(cmdType, time.Since(start), failure == nil, failure)
			return result, err
		}
	}
}

// RecordCommand implements cqrs.MetricsCollector.
func (m *Metrics) RecordCommand(cmdType string, duration time.Duration, success bool, err error) {
	m.commandDuration.WithLabelValues(m.serviceName, cmdType).Observe(duration.Seconds())
	outcome := StatusSuccess
	if !success {
		outcome = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
	}
	m.commandsTotal.WithLabelValues(m.serviceName, cmdType, outcome).Inc()
}

// errorLabels is checked in order; the first match names the error.
var errorLabels = []struct {
	target error
	label  string
}{
	{cqrs.ErrConcurrencyConflict, "concurrency_conflict"},
	{cqrs.ErrStreamNotFound, "stream_not_found"},
	{cqrs.ErrValidationFailed, "validation_failed"},
	{cqrs.ErrHandlerPanicked, "handler_panicked"},
	{cqrs.ErrSerializationFailed, "serialization_failed"},
	{cqrs.ErrEventTypeNotRegistered, "event_type_not_registered"},
	{cqrs.ErrUnknownEvent, "unknown_event"},
	{cqrs.ErrNilCommand, "nil_command"},
	{cqrs.ErrEmptyAggregateID, "empty_aggregate_id"},
	{cqrs.ErrFrameworkClosed, "framework_closed"},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{adapters.ErrEmptyStreamID, "empty_stream_id"},
	{adapters.ErrNoEvents, "no_events"},
	{adapters.ErrInvalidVersion, "invalid_version"},
	{adapters.ErrAdapterClosed, "adapter_closed"},
}

func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}
	for _, l := range errorLabels {
		if errors.Is(err, l.target) {
			return l.label
		}
	}
	return "unknown"
}
