package cqrs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
)

// requestCommand carries a client-chosen idempotency key.
type requestCommand struct {
	RequestID string
	Text      string
}

func (requestCommand) CommandType() string      { return "Request" }
func (c requestCommand) IdempotencyKey() string { return c.RequestID }

// brokenKeys fails every call.
type brokenKeys struct{ err error }

func (b brokenKeys) Get(context.Context, string) (*IdempotencyRecord, error) { return nil, b.err }
func (b brokenKeys) Store(context.Context, *IdempotencyRecord) error         { return b.err }
func (b brokenKeys) Delete(context.Context, string) error                    { return b.err }
func (b brokenKeys) Cleanup(context.Context, time.Duration) (int64, error)   { return 0, b.err }

func newIdempotentNotes(t *testing.T, config IdempotencyConfig) (*noteFramework, *memory.MemoryAdapter) {
	t.Helper()
	if config.Store == nil {
		keys := memory.NewIdempotencyStore()
		t.Cleanup(func() { _ = keys.Close() })
		config.Store = keys
	}
	return newNoteFramework(nil, WithMiddleware(IdempotencyMiddleware(config)))
}

func TestIdempotencyMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("retried key replays the recorded result", func(t *testing.T) {
		fw, adapter := newIdempotentNotes(t, IdempotencyConfig{})
		retry := WithIdempotencyKey(ctx, "req-1")

		first, err := fw.Execute(retry, "1", writeNote{Text: "a"})
		require.NoError(t, err)
		_, err = fw.Execute(ctx, "1", writeNote{Text: "b"})
		require.NoError(t, err)

		again, err := fw.Execute(retry, "1", writeNote{Text: "a"})

		require.NoError(t, err)
		assert.Equal(t, 2, adapter.EventCount(), "nothing new is appended")
		assert.True(t, again.IsSuccess())
		assert.Equal(t, first.Version, again.Version)
		assert.Equal(t, "Note", again.AggregateType)
		assert.Zero(t, again.Events)

		actx, err := fw.Load(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "b", actx.Aggregate.Text)
	})

	t.Run("content keys", func(t *testing.T) {
		fw, adapter := newIdempotentNotes(t, IdempotencyConfig{})

		for _, id := range []string{"1", "1", "2"} {
			_, err := fw.Execute(ctx, id, writeNote{Text: "same"})
			require.NoError(t, err)
		}
		_, err := fw.Execute(ctx, "1", writeNote{Text: "other"})
		require.NoError(t, err)

		assert.Equal(t, 3, adapter.EventCount())
	})

	t.Run("rejections run again by default", func(t *testing.T) {
		keys := memory.NewIdempotencyStore()
		defer keys.Close()
		fw, _ := newIdempotentNotes(t, IdempotencyConfig{Store: keys})

		for i := 0; i < 2; i++ {
			_, err := fw.Execute(ctx, "1", writeNote{Text: "taboo"})
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.NotErrorIs(t, err, ErrCommandAlreadyProcessed)
		}
		assert.Zero(t, keys.Len())
	})

	t.Run("recorded rejections replay as errors", func(t *testing.T) {
		fw, _ := newIdempotentNotes(t, IdempotencyConfig{StoreRejections: true})

		_, err := fw.Execute(ctx, "1", writeNote{Text: "taboo"})
		require.ErrorIs(t, err, ErrValidationFailed)

		result, err := fw.Execute(ctx, "1", writeNote{Text: "taboo"})

		assert.True(t, result.IsError())
		assert.ErrorIs(t, err, ErrCommandAlreadyProcessed)
		assert.ErrorIs(t, err, ErrValidationFailed)
		var replayErr *IdempotencyReplayError
		require.ErrorAs(t, err, &replayErr)
		assert.Equal(t, `text "taboo" is forbidden`, replayErr.Message)
	})

	t.Run("expired keys run again", func(t *testing.T) {
		fw, adapter := newIdempotentNotes(t, IdempotencyConfig{TTL: time.Millisecond})

		_, err := fw.Execute(ctx, "1", writeNote{Text: "a"})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		_, err = fw.Execute(ctx, "1", writeNote{Text: "a"})
		require.NoError(t, err)

		assert.Equal(t, 2, adapter.EventCount())
	})

	t.Run("skipped commands", func(t *testing.T) {
		fw, adapter := newIdempotentNotes(t, IdempotencyConfig{SkipCommands: []string{"WriteNote"}})

		for i := 0; i < 2; i++ {
			_, err := fw.Execute(ctx, "1", writeNote{Text: "a"})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, adapter.EventCount())
	})

	t.Run("store failures are logged", func(t *testing.T) {
		logger := newTestLogger()
		fw, adapter := newIdempotentNotes(t, IdempotencyConfig{Store: brokenKeys{err: errors.New("down")}, Logger: logger})

		result, err := fw.Execute(ctx, "1", writeNote{Text: "a"})

		require.NoError(t, err)
		assert.True(t, result.IsSuccess())
		assert.Equal(t, 1, adapter.EventCount())
		assert.Equal(t, []string{"Idempotency lookup failed", "Idempotency record not stored"}, logger.warnLogs)
	})

	t.Run("concurrent duplicates commit once", func(t *testing.T) {
		fw, adapter := newIdempotentNotes(t, IdempotencyConfig{})
		retry := WithIdempotencyKey(ctx, "req-9")

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := fw.Execute(retry, "1", writeNote{Text: "a"})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, adapter.EventCount())
	})
}

func TestIdempotencyKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("context key wins", func(t *testing.T) {
		key := DefaultIdempotencyKey(WithIdempotencyKey(ctx, "req-1"), "agg-1", requestCommand{RequestID: "own"})
		assert.Equal(t, "Request:agg-1:req-1", key)
	})

	t.Run("command key", func(t *testing.T) {
		assert.Equal(t, "Request:agg-1:own", DefaultIdempotencyKey(ctx, "agg-1", requestCommand{RequestID: "own"}))
	})

	t.Run("content hash", func(t *testing.T) {
		cmd := requestCommand{Text: "x"}
		key := DefaultIdempotencyKey(ctx, "agg-1", cmd)

		assert.Equal(t, GenerateIdempotencyKey("agg-1", cmd), key)
		assert.Regexp(t, `^Request:[0-9a-f]{32}$`, key)
		assert.Equal(t, key, GenerateIdempotencyKey("agg-1", requestCommand{Text: "x"}))
		assert.NotEqual(t, key, GenerateIdempotencyKey("agg-2", cmd))
		assert.NotEqual(t, key, GenerateIdempotencyKey("agg-1", requestCommand{Text: "y"}))
	})

	t.Run("prefix", func(t *testing.T) {
		key := IdempotencyKeyPrefix("billing")(ctx, "agg-1", requestCommand{RequestID: "own"})
		assert.Equal(t, "billing:Request:agg-1:own", key)
	})
}
