package metrics

import (
	"context"
	"time"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
)

type observedQuery[E cqrs.DomainEvent] struct {
	name    string
	query   cqrs.Query[E]
	metrics *Metrics
}

// ObserveQuery counts and times every dispatch to query under name. Events
// are counted as dispatched only when the query accepts the batch.
func ObserveQuery[E cqrs.DomainEvent](m *Metrics, name string, query cqrs.Query[E]) cqrs.Query[E] {
	return &observedQuery[E]{name: name, query: query, metrics: m}
}

func (q *observedQuery[E]) Dispatch(ctx context.Context, aggregateID string, envelopes []cqrs.EventEnvelope[E]) error {
	m, svc := q.metrics, q.metrics.serviceName

	start := time.Now()
	err := q.query.Dispatch(ctx, aggregateID, envelopes)
	m.queryDuration.WithLabelValues(svc, q.name).Observe(time.Since(start).Seconds())
	m.queryDispatchTotal.WithLabelValues(svc, q.name, status(err)).Inc()

	if err != nil {
		m.errorsTotal.WithLabelValues(svc, "query_failed").Inc()
		return err
	}
	for _, env := range envelopes {
		m.eventsDispatchedTotal.WithLabelValues(svc, env.AggregateType, env.Payload.EventType()).Inc()
	}
	return nil
}
