package cqrs

import (
	"encoding/json"
	"errors"
)

// Serializer encodes event payloads. Deserialize(Serialize(e),
// e.EventType()) must yield a value equal to e.
type Serializer interface {
	Serialize(event DomainEvent) ([]byte, error)
	// Deserialize decodes data into the Go type registered for eventType.
	Deserialize(data []byte, eventType string) (DomainEvent, error)
}

// EventRegisterer is implemented by serializers that must learn the event
// types before they can decode them.
type EventRegisterer interface {
	Register(examples ...DomainEvent)
}

var (
	errNilEvent  = errors.New("event cannot be nil")
	errEmptyData = errors.New("data cannot be empty")
)

// JSONSerializer is the default Serializer. It uses encoding/json, so
// payload fields follow the usual json struct tags.
type JSONSerializer struct {
	registry *EventRegistry
}

func NewJSONSerializer() *JSONSerializer {
	return NewJSONSerializerWithRegistry(nil)
}

// NewJSONSerializerWithRegistry shares registry with other serializers. A
// nil registry starts empty.
func NewJSONSerializerWithRegistry(registry *EventRegistry) *JSONSerializer {
	if registry == nil {
		registry = NewEventRegistry()
	}
	return &JSONSerializer{registry: registry}
}

func (s *JSONSerializer) Register(examples ...DomainEvent) { s.registry.Register(examples...) }

func (s *JSONSerializer) Registry() *EventRegistry { return s.registry }

func (s *JSONSerializer) Serialize(event DomainEvent) ([]byte, error) {
	if event == nil {
		return nil, NewSerializationError("nil", "serialize", errNilEvent)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, NewSerializationError(event.EventType(), "serialize", err)
	}
	return data, nil
}

func (s *JSONSerializer) Deserialize(data []byte, eventType string) (DomainEvent, error) {
	if len(data) == 0 {
		return nil, NewSerializationError(eventType, "deserialize", errEmptyData)
	}
	target, finish, err := s.registry.New(eventType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, NewSerializationError(eventType, "deserialize", err)
	}
	return finish()
}
