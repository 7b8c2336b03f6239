// Package msgpack provides a MessagePack event serializer.
//
// MessagePack is a binary format that produces smaller payloads than JSON
// while keeping the same struct mapping. Fields honour `msgpack` tags and
// fall back to the Go field name.
//
// Basic usage:
//
//	serializer := msgpack.NewSerializer()
//	serializer.Register(OrderCreated{}, ItemAdded{})
//
//	store := cqrs.New(adapter, cqrs.WithSerializer(serializer))
package msgpack

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
)

// Serializer is a MessagePack implementation of cqrs.Serializer.
type Serializer struct {
	registry *cqrs.EventRegistry
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithRegistry shares an existing event registry.
func WithRegistry(registry *cqrs.EventRegistry) SerializerOption {
	return func(s *Serializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// NewSerializer creates a new MessagePack Serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{
		registry: cqrs.NewEventRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds event types to the registry under their EventType().
func (s *Serializer) Register(examples ...cqrs.DomainEvent) {
	s.registry.Register(examples...)
}

// Registry returns the underlying EventRegistry.
func (s *Serializer) Registry() *cqrs.EventRegistry {
	return s.registry
}

// Serialize converts an event to MessagePack bytes.
func (s *Serializer) Serialize(event cqrs.DomainEvent) ([]byte, error) {
	if event == nil {
		return nil, cqrs.NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	data, err := msgpack.Marshal(event)
	if err != nil {
		return nil, cqrs.NewSerializationError(event.EventType(), "serialize", err)
	}

	return data, nil
}

// Deserialize converts MessagePack bytes back to the registered event type.
func (s *Serializer) Deserialize(data []byte, eventType string) (cqrs.DomainEvent, error) {
	if len(data) == 0 {
		return nil, cqrs.NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	target, finish, err := s.registry.New(eventType)
	if err != nil {
		return nil, err
	}

	if err := msgpack.Unmarshal(data, target); err != nil {
		return nil, cqrs.NewSerializationError(eventType, "deserialize", err)
	}

	return finish()
}

var _ cqrs.Serializer = (*Serializer)(nil)
var _ cqrs.EventRegisterer = (*Serializer)(nil)
