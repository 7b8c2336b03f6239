// Package tracing emits OpenTelemetry spans for commands, query dispatches
// and event store calls.
//
//	tracer := tracing.NewTracer(tracing.WithServiceName("orders"))
//	store := cqrs.New(tracing.NewEventStoreMiddleware(adapter, tracer))
//	fw := myaggregate.NewFramework(store, services, queries,
//		cqrs.WithMiddleware(tracing.CommandMiddleware(tracer)))
//
// Spans started inside a command share its trace, so the load, append and
// dispatch spans of one Execute hang off the command span.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName         = "github.com/AshkanYarmoradi/go-cqrs"
	DefaultServiceName = "cqrs"
)

// Span attribute keys.
const (
	AttrService       = attribute.Key("cqrs.service")
	AttrCommandType   = attribute.Key("cqrs.command.type")
	AttrAggregateID   = attribute.Key("cqrs.aggregate.id")
	AttrAggregateType = attribute.Key("cqrs.aggregate.type")
	AttrCorrelationID = attribute.Key("cqrs.correlation_id")
	AttrTenantID      = attribute.Key("cqrs.tenant_id")
	AttrVersion       = attribute.Key("cqrs.version")
	AttrEventCount    = attribute.Key("cqrs.events.count")
	AttrEventTypes    = attribute.Key("cqrs.events.types")
	AttrStreamID      = attribute.Key("cqrs.stream_id")
	AttrQuery         = attribute.Key("cqrs.query")

	attrExpectedVersion = attribute.Key("cqrs.expected_version")
	attrFromVersion     = attribute.Key("cqrs.from_version")
	attrGlobalPosition  = attribute.Key("cqrs.global_position")
)

// Tracer starts spans tagged with a service name.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

type TracerOption func(*Tracer)

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) { t.tracer = tp.Tracer(TracerName) }
}

func WithServiceName(name string) TracerOption {
	return func(t *Tracer) { t.serviceName = name }
}

// NewTracer returns a Tracer backed by the global TracerProvider unless
// WithTracerProvider says otherwise.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{serviceName: DefaultServiceName}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(TracerName)
	}
	return t
}

// StartSpan starts name as a child of the span in ctx.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(AttrService.String(t.serviceName)))
	return t.tracer.Start(ctx, name, opts...)
}

func (t *Tracer) Tracer() trace.Tracer { return t.tracer }

func (t *Tracer) ServiceName() string { return t.serviceName }

// finish sets the span status from err. It does not end the span.
func finish(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SpanFromContext returns the span carried by ctx, or a no-op span.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent records a named event on the span carried by ctx.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError marks the span carried by ctx as failed with err.
func SetError(ctx context.Context, err error) {
	finish(trace.SpanFromContext(ctx), err)
}
