package cqrs

import (
	"context"
	"errors"
	"runtime/debug"
	"time"
)

// MiddlewareFunc executes one command against one aggregate.
type MiddlewareFunc func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error)

// Middleware decorates a MiddlewareFunc.
type Middleware func(next MiddlewareFunc) MiddlewareFunc

// ChainMiddleware composes middleware so that the first one listed sees the
// command first.
func ChainMiddleware(middleware ...Middleware) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		for i := len(middleware) - 1; i >= 0; i-- {
			next = middleware[i](next)
		}
		return next
	}
}

// reject returns err both as the result error and the returned error.
func reject(err error) (CommandResult, error) {
	return NewErrorResult(err), err
}

// ValidationMiddleware calls Validate on commands that implement
// Validatable and stops the ones that fail before their aggregate is
// loaded. Errors that are not already validation failures are wrapped in a
// *ValidationError.
func ValidationMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			v, ok := cmd.(Validatable)
			if !ok {
				return next(ctx, aggregateID, cmd)
			}
			err := v.Validate()
			switch {
			case err == nil:
				return next(ctx, aggregateID, cmd)
			case errors.Is(err, ErrValidationFailed):
				return reject(err)
			default:
				return reject(NewValidationErrorWithCause(cmd.CommandType(), "", err.Error(), err))
			}
		}
	}
}

// RecoveryMiddleware turns a panic further down the chain into a
// *PanicError carrying the stack.
func RecoveryMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (result CommandResult, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				result, err = reject(NewPanicError(cmd.CommandType(), r, string(debug.Stack())))
			}()
			return next(ctx, aggregateID, cmd)
		}
	}
}

// TimeoutMiddleware gives each command at most timeout to finish.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, aggregateID, cmd)
		}
	}
}

// ConditionalMiddleware routes commands for which condition holds through
// middleware and the rest straight to next.
func ConditionalMiddleware(condition func(Command) bool, middleware Middleware) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		wrapped := middleware(next)
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			if !condition(cmd) {
				return next(ctx, aggregateID, cmd)
			}
			return wrapped(ctx, aggregateID, cmd)
		}
	}
}

// CommandTypeMiddleware is ConditionalMiddleware keyed on command type.
func CommandTypeMiddleware(types []string, middleware Middleware) Middleware {
	match := make(map[string]struct{}, len(types))
	for _, t := range types {
		match[t] = struct{}{}
	}
	return ConditionalMiddleware(func(cmd Command) bool {
		_, ok := match[cmd.CommandType()]
		return ok
	}, middleware)
}

// MetricsCollector receives one record per executed command.
type MetricsCollector interface {
	RecordCommand(cmdType string, duration time.Duration, success bool, err error)
}

// MetricsMiddleware reports every command to collector. A result error
// counts as a failure even when no error is returned.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			start := time.Now()
			result, err := next(ctx, aggregateID, cmd)

			failure := err
			if failure == nil {
				failure = result.Error
			}
			collector.RecordCommand(cmd.CommandType(), time.Since(start), failure == nil, failure)
			return result, err
		}
	}
}

// LoggingMiddleware writes a debug line when a command starts and one line
// when it ends: info on success, warn on rejection and error otherwise.
type LoggingMiddleware struct {
	logger Logger
}

func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	if logger == nil {
		logger = NopLogger()
	}
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Middleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			fields := []interface{}{"type", cmd.CommandType(), "aggregateId", aggregateID}
			m.logger.Debug("Executing command", fields...)

			start := time.Now()
			result, err := next(ctx, aggregateID, cmd)
			fields = append(fields, "duration", time.Since(start))

			switch {
			case err == nil:
				m.logger.Info("Command completed", append(fields, "version", result.Version, "events", result.Events)...)
			case errors.Is(err, ErrValidationFailed):
				m.logger.Warn("Command rejected", append(fields, "error", err)...)
			default:
				m.logger.Error("Command failed", append(fields, "error", err)...)
			}
			return result, err
		}
	}
}
