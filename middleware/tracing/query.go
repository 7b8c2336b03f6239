package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
)

type tracedQuery[E cqrs.DomainEvent] struct {
	tracer *Tracer
	name   string
	next   cqrs.Query[E]
}

// TraceQuery runs every dispatch to query in a "query.<name>" span.
func TraceQuery[E cqrs.DomainEvent](tracer *Tracer, name string, query cqrs.Query[E]) cqrs.Query[E] {
	return &tracedQuery[E]{tracer: tracer, name: name, next: query}
}

func (q *tracedQuery[E]) Dispatch(ctx context.Context, aggregateID string, envelopes []cqrs.EventEnvelope[E]) error {
	ctx, span := q.tracer.StartSpan(ctx, "query."+q.name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(batchAttributes(q.name, aggregateID, envelopes)...),
	)
	defer span.End()

	err := q.next.Dispatch(ctx, aggregateID, envelopes)
	finish(span, err)
	return err
}

func batchAttributes[E cqrs.DomainEvent](name, aggregateID string, envelopes []cqrs.EventEnvelope[E]) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrQuery.String(name),
		AttrAggregateID.String(aggregateID),
		AttrEventCount.Int(len(envelopes)),
	}
	if len(envelopes) == 0 {
		return attrs
	}

	types := make([]string, 0, len(envelopes))
	for _, env := range envelopes {
		types = append(types, env.Payload.EventType())
	}
	last := envelopes[len(envelopes)-1]
	return append(attrs,
		AttrEventTypes.StringSlice(types),
		AttrAggregateType.String(last.AggregateType),
		AttrVersion.Int64(last.Sequence),
	)
}
