package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// EventStoreMiddleware is an adapters.EventStoreAdapter that opens an
// "eventstore.<operation>" client span around each call to the wrapped
// adapter.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	tracer  *Tracer
}

var _ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)

func NewEventStoreMiddleware(adapter adapters.EventStoreAdapter, tracer *Tracer) *EventStoreMiddleware {
	return &EventStoreMiddleware{adapter: adapter, tracer: tracer}
}

func (m *EventStoreMiddleware) span(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.StartSpan(ctx, "eventstore."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (m *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	ctx, span := m.span(ctx, "append",
		AttrStreamID.String(streamID),
		AttrEventTypes.StringSlice(types),
		AttrEventCount.Int(len(events)),
		attrExpectedVersion.Int64(expectedVersion),
	)
	defer span.End()

	stored, err := m.adapter.Append(ctx, streamID, events, expectedVersion)
	finish(span, err)
	if n := len(stored); err == nil && n > 0 {
		span.SetAttributes(
			AttrVersion.Int64(stored[n-1].Version),
			attrGlobalPosition.Int64(int64(stored[n-1].GlobalPosition)),
		)
	}
	return stored, err
}

func (m *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.span(ctx, "load", AttrStreamID.String(streamID), attrFromVersion.Int64(fromVersion))
	defer span.End()

	events, err := m.adapter.Load(ctx, streamID, fromVersion)
	finish(span, err)
	if err == nil {
		span.SetAttributes(AttrEventCount.Int(len(events)))
	}
	return events, err
}

func (m *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, span := m.span(ctx, "get_stream_info", AttrStreamID.String(streamID))
	defer span.End()

	info, err := m.adapter.GetStreamInfo(ctx, streamID)
	finish(span, err)
	if err == nil {
		span.SetAttributes(AttrVersion.Int64(info.Version))
	}
	return info, err
}

func (m *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	ctx, span := m.span(ctx, "get_last_position")
	defer span.End()

	pos, err := m.adapter.GetLastPosition(ctx)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attrGlobalPosition.Int64(int64(pos)))
	}
	return pos, err
}

func (m *EventStoreMiddleware) Initialize(ctx context.Context) error {
	ctx, span := m.span(ctx, "initialize")
	defer span.End()

	err := m.adapter.Initialize(ctx)
	finish(span, err)
	return err
}

// Close is not traced.
func (m *EventStoreMiddleware) Close() error {
	return m.adapter.Close()
}
