// Package adapters defines what a storage backend must provide to hold event
// streams and query views, and the errors backends report.
package adapters

import (
	"context"
	"time"
)

// Metadata travels with every stored event. Backends persist it verbatim.
type Metadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	TenantID      string            `json:"tenantId,omitempty"`
	Custom        map[string]string `json:"custom,omitempty"`
}

// EventRecord is an encoded event waiting to be appended.
type EventRecord struct {
	Type          string
	SchemaVersion string
	Data          []byte
	Metadata      Metadata
}

// StoredEvent is an EventRecord after the backend accepted it.
type StoredEvent struct {
	ID            string
	StreamID      string
	Type          string
	SchemaVersion string
	Data          []byte
	Metadata      Metadata

	// Version is the 1-based position in the stream.
	Version int64

	// GlobalPosition orders events across all streams.
	GlobalPosition uint64

	Timestamp time.Time
}

// StreamInfo summarises one stream.
type StreamInfo struct {
	StreamID   string
	Category   string
	Version    int64
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventStoreAdapter is the storage contract behind cqrs.EventStore.
type EventStoreAdapter interface {
	// Append writes events after checking expectedVersion (see CheckVersion).
	// The batch is atomic: on error nothing was written.
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load returns the events of streamID with a version above fromVersion,
	// in stream order. An unknown stream has no events and is not an error.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// GetStreamInfo fails with a *StreamNotFoundError for unknown streams.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// GetLastPosition is the highest GlobalPosition handed out, 0 when empty.
	GetLastPosition(ctx context.Context) (uint64, error)

	Initialize(ctx context.Context) error
	Close() error
}

// HealthChecker is implemented by backends that can probe their connection.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// StreamSummary is one row of ListStreams.
type StreamSummary struct {
	StreamID      string
	EventCount    int64
	LastEventType string
	LastUpdated   time.Time
}

// StreamQueryAdapter lists streams, most recently updated first.
// An empty prefix matches every stream and a zero limit means no limit.
type StreamQueryAdapter interface {
	ListStreams(ctx context.Context, prefix string, limit int) ([]StreamSummary, error)
}

// SchemaProvider returns the DDL a backend needs.
type SchemaProvider interface {
	GenerateSchema() string
}

// ViewRecord is an encoded view and the version it was saved at.
type ViewRecord struct {
	ViewID    string
	Version   int64
	Data      []byte
	UpdatedAt time.Time
}

// ViewStore keeps encoded views, namespaced by view name.
type ViewStore interface {
	// LoadView fails with ErrViewNotFound when nothing was saved.
	LoadView(ctx context.Context, viewName, viewID string) (*ViewRecord, error)

	// SaveView replaces the view if it is still at expectedVersion, where 0
	// means not saved yet, and returns the new version. A stale
	// expectedVersion yields a *ConcurrencyError.
	SaveView(ctx context.Context, viewName, viewID string, data []byte, expectedVersion int64) (int64, error)
}

// IdempotencyRecord remembers the outcome of one command under its
// idempotency key.
type IdempotencyRecord struct {
	Key           string    `json:"key"`
	CommandType   string    `json:"commandType"`
	AggregateID   string    `json:"aggregateId,omitempty"`
	AggregateType string    `json:"aggregateType,omitempty"`
	Version       int64     `json:"version,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ProcessedAt   time.Time `json:"processedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (r *IdempotencyRecord) IsExpired() bool { return r.ExpiredAt(time.Now()) }

// ExpiredAt reports whether the record is no longer valid at now.
func (r *IdempotencyRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IdempotencyStore keeps IdempotencyRecords. Stores may drop expired
// records at any time.
type IdempotencyStore interface {
	// Get returns nil, nil for unknown or expired keys.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Store saves record, replacing any record under the same key.
	Store(ctx context.Context, record *IdempotencyRecord) error

	Delete(ctx context.Context, key string) error

	// Cleanup removes expired records and those processed more than
	// olderThan ago, returning how many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}
