package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

func fired(values ...string) []adapters.EventRecord {
	records := make([]adapters.EventRecord, 0, len(values))
	for _, v := range values {
		records = append(records, adapters.EventRecord{
			Type:          "CommandAFiredEvent",
			SchemaVersion: "1.0",
			Data:          []byte(fmt.Sprintf(`{"value":%q}`, v)),
		})
	}
	return records
}

// seeded returns an adapter holding two events in MyAggregate-1.
func seeded(t *testing.T, opts ...Option) *MemoryAdapter {
	t.Helper()
	a := NewAdapter(opts...)
	_, err := a.Append(context.Background(), "MyAggregate-1", fired("a", "b"), NoStream)
	require.NoError(t, err)
	return a
}

func TestNewAdapter(t *testing.T) {
	a := NewAdapter()

	require.NoError(t, a.Initialize(context.Background()))
	require.NoError(t, a.Ping(context.Background()))
	assert.Zero(t, a.EventCount())
	assert.Zero(t, a.ViewCount())
	assert.NotEmpty(t, a.GenerateSchema())
}

func TestAppend_ExpectedVersion(t *testing.T) {
	cases := []struct {
		name     string
		stream   string
		expected int64
		wantErr  error
		version  int64
	}{
		{name: "next version", stream: "MyAggregate-1", expected: 2, version: 3},
		{name: "any version", stream: "MyAggregate-1", expected: AnyVersion, version: 3},
		{name: "stream exists", stream: "MyAggregate-1", expected: StreamExists, version: 3},
		{name: "new stream", stream: "MyAggregate-2", expected: NoStream, version: 1},
		{name: "stale version", stream: "MyAggregate-1", expected: 1, wantErr: ErrConcurrencyConflict},
		{name: "no stream on existing", stream: "MyAggregate-1", expected: NoStream, wantErr: ErrConcurrencyConflict},
		{name: "stream exists on missing", stream: "MyAggregate-2", expected: StreamExists, wantErr: ErrStreamNotFound},
		{name: "version from the future", stream: "MyAggregate-1", expected: 7, wantErr: ErrConcurrencyConflict},
		{name: "negative version", stream: "MyAggregate-1", expected: -5, wantErr: ErrInvalidVersion},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := seeded(t)

			stored, err := a.Append(context.Background(), tc.stream, fired("c"), tc.expected)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, 2, a.EventCount(), "rejected appends store nothing")
				return
			}
			require.NoError(t, err)
			require.Len(t, stored, 1)
			assert.Equal(t, tc.version, stored[0].Version)
			assert.Equal(t, tc.stream, stored[0].StreamID)
		})
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns versions and positions", func(t *testing.T) {
		a := seeded(t)

		stored, err := a.Append(ctx, "Other-1", fired("x", "y"), NoStream)

		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, []int64{1, 2}, []int64{stored[0].Version, stored[1].Version})
		assert.Equal(t, []uint64{3, 4}, []uint64{stored[0].GlobalPosition, stored[1].GlobalPosition})
		assert.Equal(t, "CommandAFiredEvent", stored[0].Type)
		assert.Equal(t, "1.0", stored[0].SchemaVersion)
		assert.NotEqual(t, stored[0].ID, stored[1].ID)
	})

	t.Run("conflict reports both versions", func(t *testing.T) {
		a := seeded(t)

		_, err := a.Append(ctx, "MyAggregate-1", fired("c"), 1)

		var conflict *adapters.ConcurrencyError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "MyAggregate-1", conflict.StreamID)
		assert.Equal(t, int64(1), conflict.ExpectedVersion)
		assert.Equal(t, int64(2), conflict.ActualVersion)
	})

	t.Run("invalid input", func(t *testing.T) {
		a := NewAdapter()

		_, err := a.Append(ctx, "", fired("a"), NoStream)
		assert.ErrorIs(t, err, ErrEmptyStreamID)

		_, err = a.Append(ctx, "MyAggregate-1", nil, NoStream)
		assert.ErrorIs(t, err, ErrNoEvents)
	})

	t.Run("copies metadata and data", func(t *testing.T) {
		a := NewAdapter()
		records := fired("a")
		records[0].Metadata = adapters.Metadata{CorrelationID: "corr-1", Custom: map[string]string{"k": "v"}}

		_, err := a.Append(ctx, "MyAggregate-1", records, NoStream)
		require.NoError(t, err)
		records[0].Metadata.Custom["k"] = "changed"
		records[0].Data[0] = 'X'

		events, err := a.Load(ctx, "MyAggregate-1", 0)
		require.NoError(t, err)
		assert.Equal(t, "corr-1", events[0].Metadata.CorrelationID)
		assert.Equal(t, "v", events[0].Metadata.Custom["k"])
		assert.JSONEq(t, `{"value":"a"}`, string(events[0].Data))
	})

	t.Run("returned events are copies", func(t *testing.T) {
		a := NewAdapter()
		records := fired("a")
		records[0].Metadata = adapters.Metadata{Custom: map[string]string{"k": "v"}}

		stored, err := a.Append(ctx, "MyAggregate-1", records, NoStream)
		require.NoError(t, err)
		stored[0].Data[0] = 'X'
		stored[0].Metadata.Custom["k"] = "from append"

		loaded, err := a.Load(ctx, "MyAggregate-1", 0)
		require.NoError(t, err)
		loaded[0].Data[0] = 'Y'
		loaded[0].Metadata.Custom["k"] = "from load"

		again, err := a.Load(ctx, "MyAggregate-1", 0)
		require.NoError(t, err)
		assert.JSONEq(t, `{"value":"a"}`, string(again[0].Data))
		assert.Equal(t, map[string]string{"k": "v"}, again[0].Metadata.Custom)
	})

	t.Run("stamps with the clock", func(t *testing.T) {
		at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		a := NewAdapter(WithClock(func() time.Time { return at }))

		stored, err := a.Append(ctx, "MyAggregate-1", fired("a"), NoStream)

		require.NoError(t, err)
		assert.Equal(t, at, stored[0].Timestamp)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewAdapter().Append(cctx, "MyAggregate-1", fired("a"), NoStream)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)
	_, err := a.Append(ctx, "MyAggregate-2", fired("z"), NoStream)
	require.NoError(t, err)

	all, err := a.Load(ctx, "MyAggregate-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tail, err := a.Load(ctx, "MyAggregate-1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(2), tail[0].Version)

	missing, err := a.Load(ctx, "MyAggregate-9", 0)
	require.NoError(t, err)
	assert.NotNil(t, missing)
	assert.Empty(t, missing)

	_, err = a.Load(ctx, "", 0)
	assert.ErrorIs(t, err, ErrEmptyStreamID)
}

func TestStreamInfoAndPosition(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter()

	_, err := a.GetStreamInfo(ctx, "MyAggregate-1")
	assert.ErrorIs(t, err, ErrStreamNotFound)
	pos, err := a.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Zero(t, pos)

	_, err = a.Append(ctx, "MyAggregate-1", fired("a", "b"), NoStream)
	require.NoError(t, err)
	_, err = a.Append(ctx, "Other-1", fired("c"), NoStream)
	require.NoError(t, err)

	info, err := a.GetStreamInfo(ctx, "MyAggregate-1")
	require.NoError(t, err)
	assert.Equal(t, "MyAggregate", info.Category)
	assert.Equal(t, int64(2), info.Version)
	assert.Equal(t, int64(2), info.EventCount)
	assert.False(t, info.CreatedAt.IsZero())

	pos, err = a.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pos)
}

func TestListStreams(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick time.Duration
	a := NewAdapter(WithClock(func() time.Time {
		tick += time.Second
		return base.Add(tick)
	}))

	for _, id := range []string{"MyAggregate-1", "Other-1", "MyAggregate-2"} {
		_, err := a.Append(ctx, id, fired("v"), NoStream)
		require.NoError(t, err)
	}

	all, err := a.ListStreams(ctx, "", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.StreamID)
	}
	assert.Equal(t, []string{"MyAggregate-2", "Other-1", "MyAggregate-1"}, ids)
	assert.Equal(t, int64(1), all[0].EventCount)
	assert.Equal(t, "CommandAFiredEvent", all[0].LastEventType)

	some, err := a.ListStreams(ctx, "MyAggregate-", 1)
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "MyAggregate-2", some[0].StreamID)
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter()

	_, err := a.LoadView(ctx, "values", "agg-1")
	assert.ErrorIs(t, err, ErrViewNotFound)

	v, err := a.SaveView(ctx, "values", "agg-1", []byte(`{"value":"x"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = a.SaveView(ctx, "values", "agg-1", []byte(`{}`), 0)
	assert.ErrorIs(t, err, ErrConcurrencyConflict, "insert over an existing view")

	v, err = a.SaveView(ctx, "values", "agg-1", []byte(`{"value":"y"}`), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	rec, err := a.LoadView(ctx, "values", "agg-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
	assert.JSONEq(t, `{"value":"y"}`, string(rec.Data))

	_, err = a.LoadView(ctx, "other", "agg-1")
	assert.ErrorIs(t, err, ErrViewNotFound, "views are keyed by name")
	assert.Equal(t, 1, a.ViewCount())
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	calls := map[string]func() error{
		"Append": func() error { _, err := a.Append(ctx, "MyAggregate-1", fired("c"), AnyVersion); return err },
		"Load":   func() error { _, err := a.Load(ctx, "MyAggregate-1", 0); return err },
		"GetStreamInfo": func() error {
			_, err := a.GetStreamInfo(ctx, "MyAggregate-1")
			return err
		},
		"GetLastPosition": func() error { _, err := a.GetLastPosition(ctx); return err },
		"ListStreams":     func() error { _, err := a.ListStreams(ctx, "", 0); return err },
		"LoadView":        func() error { _, err := a.LoadView(ctx, "v", "1"); return err },
		"SaveView":        func() error { _, err := a.SaveView(ctx, "v", "1", nil, 0); return err },
		"Ping":            func() error { return a.Ping(ctx) },
	}
	for name, call := range calls {
		assert.ErrorIs(t, call(), ErrAdapterClosed, name)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)
	_, err := a.SaveView(ctx, "v", "1", []byte(`{}`), 0)
	require.NoError(t, err)

	a.Reset()

	assert.Zero(t, a.EventCount())
	assert.Zero(t, a.ViewCount())
	pos, err := a.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Zero(t, pos)

	stored, err := a.Append(ctx, "MyAggregate-1", fired("again"), NoStream)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored[0].GlobalPosition)
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()

	t.Run("distinct streams", func(t *testing.T) {
		a := NewAdapter()
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := a.Append(ctx, fmt.Sprintf("MyAggregate-%d", n), fired("a"), NoStream)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 100, a.EventCount())
		pos, err := a.GetLastPosition(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), pos)
	})

	t.Run("one winner per version", func(t *testing.T) {
		a := NewAdapter()
		wins := atomic.NewInt32(0)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := a.Append(ctx, "MyAggregate-1", fired("a"), NoStream); err == nil {
					wins.Inc()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, 1, a.EventCount())
	})
}

func BenchmarkAppend(b *testing.B) {
	a := NewAdapter()
	ctx := context.Background()
	records := fired("x")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = a.Append(ctx, "MyAggregate-bench", records, AnyVersion)
	}
}
