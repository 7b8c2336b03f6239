package cqrs

import (
	"context"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// ErrNotSupported is returned when the adapter lacks an optional capability.
var ErrNotSupported = errors.New("cqrs: operation not supported by adapter")

// EventStore encodes domain events for an adapter and decodes them on the
// way back. It knows nothing about aggregates; see Repository for that.
type EventStore struct {
	adapter    adapters.EventStoreAdapter
	serializer Serializer
	logger     Logger
}

type Option func(*EventStore)

// WithSerializer replaces the default JSONSerializer.
func WithSerializer(s Serializer) Option {
	return func(es *EventStore) { es.serializer = s }
}

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		if l != nil {
			es.logger = l
		}
	}
}

// New creates an EventStore over adapter.
func New(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{adapter: adapter, serializer: NewJSONSerializer(), logger: NopLogger()}
	for _, opt := range opts {
		opt(es)
	}
	return es
}

func (s *EventStore) Serializer() Serializer              { return s.serializer }
func (s *EventStore) Adapter() adapters.EventStoreAdapter { return s.adapter }
func (s *EventStore) Logger() Logger                      { return s.logger }

// RegisterEvents teaches the serializer the given event types, when it keeps
// a registry. Events must be registered before they can be loaded.
func (s *EventStore) RegisterEvents(events ...DomainEvent) {
	if r, ok := s.serializer.(EventRegisterer); ok {
		r.Register(events...)
	}
}

type AppendOption func(*appendConfig)

type appendConfig struct {
	metadata        Metadata
	expectedVersion int64
}

// ExpectVersion makes the append fail with a *ConcurrencyError unless the
// stream is at v. Without it any version is accepted.
func ExpectVersion(v int64) AppendOption {
	return func(c *appendConfig) { c.expectedVersion = v }
}

// WithAppendMetadata stamps m on every appended event.
func WithAppendMetadata(m Metadata) AppendOption {
	return func(c *appendConfig) { c.metadata = m }
}

// Append encodes events and writes them to streamID as one batch.
func (s *EventStore) Append(ctx context.Context, streamID string, events []DomainEvent, opts ...AppendOption) ([]StoredEvent, error) {
	switch {
	case streamID == "":
		return nil, ErrEmptyStreamID
	case len(events) == 0:
		return nil, ErrNoEvents
	}

	cfg := appendConfig{expectedVersion: AnyVersion}
	for _, opt := range opts {
		opt(&cfg)
	}

	records, err := s.encode(events, cfg.metadata)
	if err != nil {
		return nil, err
	}

	stored, err := s.adapter.Append(ctx, streamID, records, cfg.expectedVersion)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("events appended", "stream", streamID, "count", len(stored))

	return fromAdapterEvents(stored), nil
}

func (s *EventStore) encode(events []DomainEvent, metadata Metadata) ([]adapters.EventRecord, error) {
	records := make([]adapters.EventRecord, 0, len(events))
	for i, event := range events {
		if event == nil {
			return nil, NewSerializationError("nil", "serialize", fmt.Errorf("event %d is nil", i))
		}
		data, err := s.serializer.Serialize(event)
		if err != nil {
			return nil, fmt.Errorf("cqrs: failed to serialize event %d: %w", i, err)
		}
		records = append(records, adapters.EventRecord{
			Type:          event.EventType(),
			SchemaVersion: event.EventVersion(),
			Data:          data,
			Metadata:      adapters.Metadata(metadata),
		})
	}
	return records, nil
}

// Load decodes every event of streamID.
func (s *EventStore) Load(ctx context.Context, streamID string) ([]Event, error) {
	return s.LoadFrom(ctx, streamID, 0)
}

// LoadFrom decodes the events of streamID after fromVersion. SchemaVersion is
// reported on each Event as stored; decoding does not depend on it.
func (s *EventStore) LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]Event, error) {
	raw, err := s.LoadRaw(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(raw))
	for i, stored := range raw {
		data, err := s.serializer.Deserialize(stored.Data, stored.Type)
		if err != nil {
			return nil, fmt.Errorf("cqrs: failed to deserialize event %d of %s: %w", i, streamID, err)
		}
		events[i] = EventFromStored(stored, data)
	}
	return events, nil
}

// LoadRaw returns the still-encoded events of streamID after fromVersion.
func (s *EventStore) LoadRaw(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	stored, err := s.adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}
	return fromAdapterEvents(stored), nil
}

// GetStreamInfo fails with a *StreamNotFoundError for unknown streams.
func (s *EventStore) GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	info, err := s.adapter.GetStreamInfo(ctx, streamID)
	if err != nil {
		return nil, err
	}
	out := StreamInfo(*info)
	return &out, nil
}

// ListStreams needs an adapter implementing adapters.StreamQueryAdapter and
// returns ErrNotSupported otherwise.
func (s *EventStore) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	q, ok := s.adapter.(adapters.StreamQueryAdapter)
	if !ok {
		return nil, ErrNotSupported
	}
	return q.ListStreams(ctx, prefix, limit)
}

func (s *EventStore) GetLastPosition(ctx context.Context) (uint64, error) {
	return s.adapter.GetLastPosition(ctx)
}

// Ping probes the backend. Adapters without a health check always pass.
func (s *EventStore) Ping(ctx context.Context) error {
	if hc, ok := s.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

func (s *EventStore) Initialize(ctx context.Context) error { return s.adapter.Initialize(ctx) }
func (s *EventStore) Close() error                         { return s.adapter.Close() }

func fromAdapterEvents(stored []adapters.StoredEvent) []StoredEvent {
	out := make([]StoredEvent, len(stored))
	for i, e := range stored {
		out[i] = StoredEvent{
			ID:             e.ID,
			StreamID:       e.StreamID,
			Type:           e.Type,
			SchemaVersion:  e.SchemaVersion,
			Data:           e.Data,
			Metadata:       Metadata(e.Metadata),
			Version:        e.Version,
			GlobalPosition: e.GlobalPosition,
			Timestamp:      e.Timestamp,
		}
	}
	return out
}
