package cqrs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

type (
	IdempotencyStore  = adapters.IdempotencyStore
	IdempotencyRecord = adapters.IdempotencyRecord
)

// IdempotentCommand carries its own idempotency key, usually a request or
// message ID chosen by the client.
type IdempotentCommand interface {
	Command
	IdempotencyKey() string
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches a caller-chosen key for the next command
// executed with ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

func IdempotencyKeyFromContext(ctx context.Context) string {
	return stringValue(ctx, idempotencyKeyCtx{})
}

// IdempotencyReplayError is returned when a command repeats one whose
// rejection was recorded. It matches ErrCommandAlreadyProcessed and
// ErrValidationFailed.
type IdempotencyReplayError struct {
	Key     string
	Message string
}

func (e *IdempotencyReplayError) Error() string {
	return "cqrs: command already processed with key " + e.Key + ": " + e.Message
}

func (e *IdempotencyReplayError) Is(target error) bool {
	return target == ErrCommandAlreadyProcessed || target == ErrValidationFailed
}

// NewIdempotencyRecord captures result under key until ttl has passed.
func NewIdempotencyRecord(key, cmdType string, result CommandResult, ttl time.Duration) *IdempotencyRecord {
	now := time.Now()
	record := &IdempotencyRecord{
		Key:           key,
		CommandType:   cmdType,
		AggregateID:   result.AggregateID,
		AggregateType: result.AggregateType,
		Version:       result.Version,
		Success:       result.IsSuccess(),
		ProcessedAt:   now,
		ExpiresAt:     now.Add(ttl),
	}
	if result.Error != nil {
		record.Error = result.Error.Error()
	}
	return record
}

// replay rebuilds the result a recorded command produced. Events stays 0:
// the replay commits nothing.
func replay(record *IdempotencyRecord) (CommandResult, error) {
	if !record.Success {
		return reject(&IdempotencyReplayError{Key: record.Key, Message: record.Error})
	}
	result := NewSuccessResult(record.AggregateID, record.Version)
	result.AggregateType = record.AggregateType
	return result, nil
}

// GenerateIdempotencyKey derives a key from the command type, the
// aggregate and the command's JSON encoding, so identical commands sent to
// the same aggregate share a key.
func GenerateIdempotencyKey(aggregateID string, cmd Command) string {
	h := sha256.New()
	h.Write([]byte(aggregateID))
	h.Write([]byte{0})
	if data, err := json.Marshal(cmd); err == nil {
		h.Write(data)
	} else {
		h.Write([]byte("type-only"))
	}
	return cmd.CommandType() + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// DefaultIdempotencyKey prefers the key in ctx, then the command's own
// IdempotencyKey, then GenerateIdempotencyKey.
func DefaultIdempotencyKey(ctx context.Context, aggregateID string, cmd Command) string {
	if key := IdempotencyKeyFromContext(ctx); key != "" {
		return cmd.CommandType() + ":" + aggregateID + ":" + key
	}
	if ic, ok := cmd.(IdempotentCommand); ok && ic.IdempotencyKey() != "" {
		return cmd.CommandType() + ":" + aggregateID + ":" + ic.IdempotencyKey()
	}
	return GenerateIdempotencyKey(aggregateID, cmd)
}

// IdempotencyKeyPrefix namespaces DefaultIdempotencyKey, for stores shared
// between services.
func IdempotencyKeyPrefix(prefix string) func(context.Context, string, Command) string {
	return func(ctx context.Context, aggregateID string, cmd Command) string {
		return prefix + ":" + DefaultIdempotencyKey(ctx, aggregateID, cmd)
	}
}

type IdempotencyConfig struct {
	Store IdempotencyStore

	// TTL bounds how long a key is remembered. Defaults to 24h.
	TTL time.Duration

	// KeyGenerator defaults to DefaultIdempotencyKey.
	KeyGenerator func(ctx context.Context, aggregateID string, cmd Command) string

	// StoreRejections also records business rejections, so a repeated
	// rejected command fails with an *IdempotencyReplayError instead of
	// running again. Other failures are never recorded.
	StoreRejections bool

	SkipCommands []string

	// Logger receives store failures. They never fail the command.
	Logger Logger
}

func DefaultIdempotencyConfig(store IdempotencyStore) IdempotencyConfig {
	return IdempotencyConfig{
		Store:        store,
		TTL:          24 * time.Hour,
		KeyGenerator: DefaultIdempotencyKey,
	}
}

// IdempotencyMiddleware executes a command once per key. A repeated key
// gets the recorded result back without reaching the aggregate, so a
// client retrying a command that already committed does not commit it
// twice. Commands sharing a key run one at a time within the process.
func IdempotencyMiddleware(config IdempotencyConfig) Middleware {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultIdempotencyKey
	}
	if config.Logger == nil {
		config.Logger = NopLogger()
	}

	skip := make(map[string]bool, len(config.SkipCommands))
	for _, t := range config.SkipCommands {
		skip[t] = true
	}
	inflight := newKeyedLock()

	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, aggregateID string, cmd Command) (CommandResult, error) {
			if skip[cmd.CommandType()] {
				return next(ctx, aggregateID, cmd)
			}

			key := config.KeyGenerator(ctx, aggregateID, cmd)
			unlock, err := inflight.lock(ctx, key)
			if err != nil {
				return reject(err)
			}
			defer unlock()

			record, err := config.Store.Get(ctx, key)
			switch {
			case err != nil:
				config.Logger.Warn("Idempotency lookup failed", "key", key, "error", err)
			case record != nil && !record.IsExpired():
				config.Logger.Debug("Command replayed", "key", key, "type", cmd.CommandType())
				return replay(record)
			}

			result, cmdErr := next(ctx, aggregateID, cmd)

			keep := cmdErr == nil && result.IsSuccess()
			if config.StoreRejections && errors.Is(cmdErr, ErrValidationFailed) {
				keep = true
			}
			if keep {
				rec := NewIdempotencyRecord(key, cmd.CommandType(), result, config.TTL)
				if err := config.Store.Store(ctx, rec); err != nil {
					config.Logger.Warn("Idempotency record not stored", "key", key, "error", err)
				}
			}
			return result, cmdErr
		}
	}
}
