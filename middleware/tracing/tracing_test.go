package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/adapters"
	"github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
	"github.com/AshkanYarmoradi/go-cqrs/examples/myaggregate"
)

type testCommand struct{}

func (testCommand) CommandType() string { return "TestCommand" }

type tested struct{}

func (tested) EventType() string    { return "Tested" }
func (tested) EventVersion() string { return "1.0" }

func setupTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	return NewTracer(WithTracerProvider(tp), WithServiceName("test")), exporter
}

func attributeMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestNewTracer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tracer := NewTracer()

		assert.Equal(t, DefaultServiceName, tracer.ServiceName())
		assert.NotNil(t, tracer.Tracer())
	})

	t.Run("service name", func(t *testing.T) {
		assert.Equal(t, "custom", NewTracer(WithServiceName("custom")).ServiceName())
	})
}

func TestTracer_StartSpan(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	_, span := tracer.StartSpan(context.Background(), "test-span")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "test-span", spans[0].Name)
	assert.Equal(t, "test", attributeMap(spans[0].Attributes)[AttrService].AsString())
}

func TestCommandMiddleware(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tracer, exporter := setupTestTracer(t)
		handler := CommandMiddleware(tracer)(func(ctx context.Context, id string, cmd cqrs.Command) (cqrs.CommandResult, error) {
			assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid(), "span is propagated")
			return cqrs.NewSuccessResult(id, 4), nil
		})

		ctx := cqrs.WithCorrelationID(context.Background(), "corr-1")
		ctx = cqrs.WithTenantID(ctx, "tenant-1")
		_, err := handler(ctx, "agg-1", testCommand{})
		require.NoError(t, err)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "command.TestCommand", spans[0].Name)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)

		attrs := attributeMap(spans[0].Attributes)
		assert.Equal(t, "TestCommand", attrs[AttrCommandType].AsString())
		assert.Equal(t, "agg-1", attrs[AttrAggregateID].AsString())
		assert.Equal(t, "corr-1", attrs[AttrCorrelationID].AsString())
		assert.Equal(t, "tenant-1", attrs[AttrTenantID].AsString())
		assert.Equal(t, int64(4), attrs[AttrVersion].AsInt64())
	})

	t.Run("error", func(t *testing.T) {
		tracer, exporter := setupTestTracer(t)
		boom := errors.New("command failed")
		handler := CommandMiddleware(tracer)(func(context.Context, string, cqrs.Command) (cqrs.CommandResult, error) {
			return cqrs.NewErrorResult(boom), boom
		})

		_, err := handler(context.Background(), "agg-1", testCommand{})
		assert.ErrorIs(t, err, boom)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "command failed", spans[0].Status.Description)
		require.Len(t, spans[0].Events, 1, "error is recorded as a span event")
	})

	t.Run("error only in result", func(t *testing.T) {
		tracer, exporter := setupTestTracer(t)
		handler := CommandMiddleware(tracer)(func(context.Context, string, cqrs.Command) (cqrs.CommandResult, error) {
			return cqrs.NewErrorResult(cqrs.ErrConcurrencyConflict), nil
		})

		_, err := handler(context.Background(), "agg-1", testCommand{})
		require.NoError(t, err)

		assert.Equal(t, codes.Error, exporter.GetSpans()[0].Status.Code)
	})
}

func TestTraceQuery(t *testing.T) {
	envelopes := []cqrs.EventEnvelope[cqrs.DomainEvent]{
		{AggregateID: "a-1", AggregateType: "Tester", Sequence: 1, Payload: tested{}},
		{AggregateID: "a-1", AggregateType: "Tester", Sequence: 2, Payload: tested{}},
	}

	t.Run("success", func(t *testing.T) {
		tracer, exporter := setupTestTracer(t)
		q := TraceQuery[cqrs.DomainEvent](tracer, "counter", cqrs.QueryFunc[cqrs.DomainEvent](
			func(context.Context, string, []cqrs.EventEnvelope[cqrs.DomainEvent]) error { return nil }))

		require.NoError(t, q.Dispatch(context.Background(), "a-1", envelopes))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "query.counter", spans[0].Name)
		attrs := attributeMap(spans[0].Attributes)
		assert.Equal(t, []string{"Tested", "Tested"}, attrs[AttrEventTypes].AsStringSlice())
		assert.Equal(t, "Tester", attrs[AttrAggregateType].AsString())
		assert.Equal(t, int64(2), attrs[AttrVersion].AsInt64())
		assert.Equal(t, int64(2), attrs[AttrEventCount].AsInt64())
	})

	t.Run("failure", func(t *testing.T) {
		tracer, exporter := setupTestTracer(t)
		boom := errors.New("boom")
		q := TraceQuery[cqrs.DomainEvent](tracer, "broken", cqrs.QueryFunc[cqrs.DomainEvent](
			func(context.Context, string, []cqrs.EventEnvelope[cqrs.DomainEvent]) error { return boom }))

		assert.ErrorIs(t, q.Dispatch(context.Background(), "a-1", envelopes), boom)
		assert.Equal(t, codes.Error, exporter.GetSpans()[0].Status.Code)
	})
}

func TestEventStoreMiddleware(t *testing.T) {
	ctx := context.Background()
	tracer, exporter := setupTestTracer(t)
	m := NewEventStoreMiddleware(memory.NewAdapter(), tracer)

	require.NoError(t, m.Initialize(ctx))

	records := []adapters.EventRecord{{Type: "A", Data: []byte(`{}`)}, {Type: "B", Data: []byte(`{}`)}}
	_, err := m.Append(ctx, "Order-1", records, adapters.NoStream)
	require.NoError(t, err)

	_, err = m.Append(ctx, "Order-1", records, adapters.NoStream)
	assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

	_, err = m.Load(ctx, "Order-1", 0)
	require.NoError(t, err)

	_, err = m.GetStreamInfo(ctx, "Order-1")
	require.NoError(t, err)

	_, err = m.GetLastPosition(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Close())

	spans := exporter.GetSpans()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"eventstore.initialize",
		"eventstore.append",
		"eventstore.append",
		"eventstore.load",
		"eventstore.get_stream_info",
		"eventstore.get_last_position",
	}, names)

	first := attributeMap(spans[1].Attributes)
	assert.Equal(t, "Order-1", first[AttrStreamID].AsString())
	assert.Equal(t, []string{"A", "B"}, first[AttrEventTypes].AsStringSlice())
	assert.Equal(t, int64(2), first[AttrVersion].AsInt64())
	assert.Equal(t, trace.SpanKindClient, spans[1].SpanKind)
	assert.Equal(t, codes.Error, spans[2].Status.Code)
	assert.Equal(t, int64(2), attributeMap(spans[3].Attributes)[AttrEventCount].AsInt64())
}

func TestTracing_WithFramework(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	store := cqrs.New(NewEventStoreMiddleware(memory.NewAdapter(), tracer))
	query := myaggregate.NewValueQuery(cqrs.NewInMemoryViewRepository[*myaggregate.ValueView]())

	fw := myaggregate.NewFramework(store, myaggregate.Services{},
		[]cqrs.Query[myaggregate.Event]{TraceQuery[myaggregate.Event](tracer, "values", query)},
		cqrs.WithMiddleware(CommandMiddleware(tracer)))

	_, err := fw.Execute(context.Background(), "agg-1", myaggregate.CommandA{Value: "x"})
	require.NoError(t, err)

	var command, load, appendSpan, dispatch tracetest.SpanStub
	for _, s := range exporter.GetSpans() {
		switch s.Name {
		case "command.CommandA":
			command = s
		case "eventstore.load":
			load = s
		case "eventstore.append":
			appendSpan = s
		case "query.values":
			dispatch = s
		}
	}

	require.NotEmpty(t, command.Name)
	assert.Equal(t, command.SpanContext.TraceID(), load.SpanContext.TraceID())
	assert.Equal(t, command.SpanContext.SpanID(), load.Parent.SpanID())
	assert.Equal(t, command.SpanContext.SpanID(), appendSpan.Parent.SpanID())
	assert.Equal(t, command.SpanContext.SpanID(), dispatch.Parent.SpanID())
	assert.Equal(t, "MyAggregate", attributeMap(command.Attributes)[AttrAggregateType].AsString())
	assert.Equal(t, int64(1), attributeMap(command.Attributes)[AttrEventCount].AsInt64())
}

func TestSpanHelpers(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	ctx, span := tracer.StartSpan(context.Background(), "helpers")
	AddEvent(ctx, "checkpoint")
	SetError(ctx, errors.New("bad"))
	assert.Equal(t, span, SpanFromContext(ctx))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Len(t, spans[0].Events, 2, "added event plus recorded error")
}
