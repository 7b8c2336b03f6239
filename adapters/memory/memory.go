// Package memory keeps event streams and views in process memory. It backs
// tests, the examples and the CLI's memory driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// Re-exported so callers can match errors without importing adapters.
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrInvalidVersion      = adapters.ErrInvalidVersion
	ErrViewNotFound        = adapters.ErrViewNotFound
)

var (
	_ adapters.EventStoreAdapter  = (*MemoryAdapter)(nil)
	_ adapters.StreamQueryAdapter = (*MemoryAdapter)(nil)
	_ adapters.ViewStore          = (*MemoryAdapter)(nil)
	_ adapters.HealthChecker      = (*MemoryAdapter)(nil)
	_ adapters.SchemaProvider     = (*MemoryAdapter)(nil)
)

// MemoryAdapter is safe for concurrent use. Stored data is copied on the way
// in and out, so callers may reuse their buffers.
type MemoryAdapter struct {
	mu       sync.RWMutex
	streams  map[string]*stream
	views    map[string]*adapters.ViewRecord
	position uint64
	closed   bool
	now      func() time.Time
}

type stream struct {
	info   adapters.StreamInfo
	events []adapters.StoredEvent
}

type Option func(*MemoryAdapter)

// WithClock replaces time.Now for stamping events and views.
func WithClock(now func() time.Time) Option {
	return func(a *MemoryAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAdapter(opts ...Option) *MemoryAdapter {
	a := &MemoryAdapter{now: time.Now}
	a.clear()
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *MemoryAdapter) clear() {
	a.streams = make(map[string]*stream)
	a.views = make(map[string]*adapters.ViewRecord)
	a.position = 0
}

// read and write run fn under the matching lock once ctx and the open state
// have been checked.
func (a *MemoryAdapter) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrAdapterClosed
	}
	return fn()
}

func (a *MemoryAdapter) write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAdapterClosed
	}
	return fn()
}

// Initialize does nothing.
func (a *MemoryAdapter) Initialize(context.Context) error { return nil }

func (a *MemoryAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	var stored []adapters.StoredEvent
	err := a.write(ctx, func() error {
		switch {
		case streamID == "":
			return ErrEmptyStreamID
		case len(events) == 0:
			return ErrNoEvents
		}

		s, exists := a.streams[streamID]
		var version int64
		if exists {
			version = s.info.Version
		}
		if err := adapters.CheckVersion(streamID, expectedVersion, version, exists); err != nil {
			return err
		}

		now := a.now()
		if !exists {
			s = &stream{info: adapters.StreamInfo{
				StreamID:  streamID,
				Category:  adapters.StreamCategory(streamID),
				CreatedAt: now,
			}}
			a.streams[streamID] = s
		}

		stored = make([]adapters.StoredEvent, len(events))
		for i, rec := range events {
			a.position++
			e := copyEvent(adapters.StoredEvent{
				ID:             uuid.NewString(),
				StreamID:       streamID,
				Type:           rec.Type,
				SchemaVersion:  rec.SchemaVersion,
				Data:           rec.Data,
				Metadata:       rec.Metadata,
				Version:        version + int64(i) + 1,
				GlobalPosition: a.position,
				Timestamp:      now,
			})
			s.events = append(s.events, e)
			stored[i] = copyEvent(e)
		}

		s.info.Version = version + int64(len(stored))
		s.info.EventCount = int64(len(s.events))
		s.info.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Load returns an empty slice for unknown streams.
func (a *MemoryAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	out := []adapters.StoredEvent{}
	err := a.read(ctx, func() error {
		if streamID == "" {
			return ErrEmptyStreamID
		}
		s, ok := a.streams[streamID]
		if !ok {
			return nil
		}
		for _, e := range s.events {
			if e.Version > fromVersion {
				out = append(out, copyEvent(e))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func copyEvent(e adapters.StoredEvent) adapters.StoredEvent {
	e.Data = append([]byte(nil), e.Data...)
	e.Metadata = adapters.CopyMetadata(e.Metadata)
	return e
}

func (a *MemoryAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	var info adapters.StreamInfo
	err := a.read(ctx, func() error {
		s, ok := a.streams[streamID]
		if !ok {
			return adapters.NewStreamNotFoundError(streamID)
		}
		info = s.info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (a *MemoryAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	var pos uint64
	err := a.read(ctx, func() error {
		pos = a.position
		return nil
	})
	return pos, err
}

// ListStreams orders by last update, newest first, then by stream ID.
func (a *MemoryAdapter) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	var out []adapters.StreamSummary
	err := a.read(ctx, func() error {
		out = make([]adapters.StreamSummary, 0, len(a.streams))
		for id, s := range a.streams {
			if !strings.HasPrefix(id, prefix) {
				continue
			}
			out = append(out, adapters.StreamSummary{
				StreamID:      id,
				EventCount:    s.info.EventCount,
				LastEventType: s.events[len(s.events)-1].Type,
				LastUpdated:   s.info.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].StreamID < out[j].StreamID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *MemoryAdapter) GenerateSchema() string {
	return "-- in-memory adapter: no schema required\n"
}

// Ping fails once the adapter is closed.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	return a.read(ctx, func() error { return nil })
}

func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

// Reset drops every stream and view and rewinds the global position.
func (a *MemoryAdapter) Reset() {
	a.mu.Lock()
	a.clear()
	a.mu.Unlock()
}

// EventCount is the number of events stored across all streams.
func (a *MemoryAdapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int(a.position)
}
