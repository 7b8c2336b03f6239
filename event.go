package cqrs

import (
	"time"
)

// DomainEvent is a fact an aggregate emitted. Implementations are plain
// value structs, so two events are equal when variant and payload are.
type DomainEvent interface {
	// EventType is the stored type tag, e.g. "CommandAFiredEvent".
	EventType() string
	// EventVersion is the payload schema tag, e.g. "1.0".
	EventVersion() string
}

// EventEnvelope is a committed event together with where and when it was
// stored. Queries and publishers only ever see envelopes.
type EventEnvelope[E DomainEvent] struct {
	EventID       string
	AggregateID   string
	AggregateType string
	// Sequence is 1-based within the aggregate's stream.
	Sequence int64
	Payload  E
	Metadata Metadata

	GlobalPosition uint64
	Timestamp      time.Time
}

func (e EventEnvelope[E]) StreamID() string {
	return BuildStreamID(e.AggregateType, e.AggregateID)
}

// Payloads returns the events of envelopes in order.
func Payloads[E DomainEvent](envelopes []EventEnvelope[E]) []E {
	out := make([]E, 0, len(envelopes))
	for _, env := range envelopes {
		out = append(out, env.Payload)
	}
	return out
}

// StoredEvent is an event as the adapter returned it, payload still
// encoded.
type StoredEvent struct {
	ID            string
	StreamID      string
	Type          string
	SchemaVersion string
	Data          []byte
	Metadata      Metadata
	// Version is 1-based within the stream.
	Version        int64
	GlobalPosition uint64
	Timestamp      time.Time
}

// Event is a StoredEvent with its payload decoded.
type Event struct {
	ID             string
	StreamID       string
	Type           string
	SchemaVersion  string
	Data           DomainEvent
	Metadata       Metadata
	Version        int64
	GlobalPosition uint64
	Timestamp      time.Time
}

func EventFromStored(stored StoredEvent, data DomainEvent) Event {
	return Event{
		ID:             stored.ID,
		StreamID:       stored.StreamID,
		Type:           stored.Type,
		SchemaVersion:  stored.SchemaVersion,
		Data:           data,
		Metadata:       stored.Metadata,
		Version:        stored.Version,
		GlobalPosition: stored.GlobalPosition,
		Timestamp:      stored.Timestamp,
	}
}
