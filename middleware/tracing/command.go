package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
)

// CommandMiddleware runs every command in a "command.<type>" span. The
// correlation and tenant IDs in the context are copied onto the span, and a
// successful result adds the aggregate type, the new version and the number
// of events written.
func CommandMiddleware(tracer *Tracer) cqrs.Middleware {
	return func(next cqrs.MiddlewareFunc) cqrs.MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd cqrs.Command) (cqrs.CommandResult, error) {
			attrs := []attribute.KeyValue{
				AttrCommandType.String(cmd.CommandType()),
				AttrAggregateID.String(aggregateID),
			}
			if id := cqrs.CorrelationIDFromContext(ctx); id != "" {
				attrs = append(attrs, AttrCorrelationID.String(id))
			}
			if id := cqrs.TenantIDFromContext(ctx); id != "" {
				attrs = append(attrs, AttrTenantID.String(id))
			}

			ctx, span := tracer.StartSpan(ctx, "command."+cmd.CommandType(),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			result, err := next(ctx, aggregateID, cmd)
			if err == nil && result.IsError() {
				finish(span, result.Error)
				return result, nil
			}
			finish(span, err)
			if err == nil {
				span.SetAttributes(
					AttrAggregateType.String(result.AggregateType),
					AttrVersion.Int64(result.Version),
					AttrEventCount.Int(result.Events),
				)
			}
			return result, err
		}
	}
}
