package cqrs

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier grows the delay after each retry.
	Multiplier float64

	// ShouldRetry selects retryable errors. Nil retries only concurrency
	// conflicts.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig retries a concurrency conflict up to twice more,
// starting at 10ms and doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
}

func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 10 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 1.0
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsConcurrencyConflict
	}
	return c
}

// backOff builds a fresh, unjittered schedule bound to ctx.
func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval: c.InitialDelay,
		Multiplier:      c.Multiplier,
		MaxInterval:     c.MaxDelay,
		Stop:            backoff.Stop,
		Clock:           backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.MaxAttempts-1)), ctx)
}

// RetryMiddleware runs the command again after a retryable failure. Every
// attempt goes through the rest of the chain, so the aggregate is reloaded
// and sees whatever the conflicting writer committed.
func RetryMiddleware(config RetryConfig) Middleware {
	config = config.withDefaults()

	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			var result CommandResult
			err := backoff.Retry(func() error {
				var err error
				result, err = next(ctx, aggregateID, cmd)
				if err != nil && !config.ShouldRetry(err) {
					return backoff.Permanent(err)
				}
				return err
			}, config.backOff(ctx))

			if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
				return reject(ctxErr)
			}
			return result, err
		}
	}
}
