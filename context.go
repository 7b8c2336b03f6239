package cqrs

import (
	"context"

	"github.com/google/uuid"
)

type (
	metadataKey      struct{}
	correlationIDKey struct{}
	causationIDKey   struct{}
	tenantIDKey      struct{}
)

func stringValue(ctx context.Context, key interface{}) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// ContextWithMetadata attaches m to ctx. The framework stamps it onto every
// event the command commits.
func ContextWithMetadata(ctx context.Context, m Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, m)
}

// MetadataFromContext returns the metadata attached to ctx. Correlation,
// causation and tenant IDs the metadata leaves empty are taken from ctx.
func MetadataFromContext(ctx context.Context) Metadata {
	m, _ := ctx.Value(metadataKey{}).(Metadata)
	if m.CorrelationID == "" {
		m.CorrelationID = CorrelationIDFromContext(ctx)
	}
	if m.CausationID == "" {
		m.CausationID = CausationIDFromContext(ctx)
	}
	if m.TenantID == "" {
		m.TenantID = TenantIDFromContext(ctx)
	}
	return m
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey{})
}

func WithCausationID(ctx context.Context, causationID string) context.Context {
	return context.WithValue(ctx, causationIDKey{}, causationID)
}

func CausationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, causationIDKey{})
}

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

func TenantIDFromContext(ctx context.Context) string {
	return stringValue(ctx, tenantIDKey{})
}

// CorrelationIDMiddleware gives commands without a correlation ID a new one
// from generator, or a random UUID when generator is nil.
func CorrelationIDMiddleware(generator func() string) Middleware {
	if generator == nil {
		generator = uuid.NewString
	}
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			if CorrelationIDFromContext(ctx) == "" {
				ctx = WithCorrelationID(ctx, generator())
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}

// CausationIDMiddleware sets the causation ID to "<command type>:<uuid>"
// unless the context already has one.
func CausationIDMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			if CausationIDFromContext(ctx) == "" {
				ctx = WithCausationID(ctx, cmd.CommandType()+":"+uuid.NewString())
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}

// TenantMiddleware stores the tenant extracted from the command in the
// context. A tenant already in the context wins. With required set, a
// command without tenant fails with a *ValidationError on "tenantId".
func TenantMiddleware(extractor func(Command) string, required bool) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			if TenantIDFromContext(ctx) != "" {
				return next(ctx, aggregateID, cmd)
			}

			var tenant string
			if extractor != nil {
				tenant = extractor(cmd)
			}
			switch {
			case tenant != "":
				ctx = WithTenantID(ctx, tenant)
			case required:
				return reject(NewValidationError(cmd.CommandType(), "tenantId", "tenant ID is required"))
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}
