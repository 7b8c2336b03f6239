// Package protobuf provides a Protocol Buffers event serializer.
//
// Events are plain Go structs. Each one is encoded as a google.protobuf.Struct
// envelope carrying the event type, the event version and the payload:
//
//	{"type": "OrderCreated", "version": "1.0", "data": "{\"orderId\":...}"}
//
// The payload is the event's JSON document held in a string value, so the
// same structs work with the JSON, MessagePack and Protocol Buffers
// serializers and 64-bit integers decode exactly.
//
// Usage:
//
//	s := protobuf.NewSerializer()
//	s.Register(OrderCreated{}, ItemAdded{})
//
//	store := cqrs.New(adapter, cqrs.WithSerializer(s))
package protobuf

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
)

const (
	fieldType    = "type"
	fieldVersion = "version"
	fieldData    = "data"
)

var (
	// ErrTypeMismatch indicates the envelope holds a different event type than requested.
	ErrTypeMismatch = errors.New("cqrs/protobuf: event type mismatch")

	// ErrMalformedEnvelope indicates the bytes decode to a Struct without the envelope fields.
	ErrMalformedEnvelope = errors.New("cqrs/protobuf: malformed envelope")
)

// SerializerOption configures the Serializer.
type SerializerOption func(*Serializer)

// WithRegistry shares an existing event registry.
func WithRegistry(registry *cqrs.EventRegistry) SerializerOption {
	return func(s *Serializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// Serializer implements cqrs.Serializer with structpb envelopes.
type Serializer struct {
	registry *cqrs.EventRegistry
	marshal  proto.MarshalOptions
}

// NewSerializer creates a new Protocol Buffers serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{
		registry: cqrs.NewEventRegistry(),
		marshal:  proto.MarshalOptions{Deterministic: true},
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

// Serialize encodes an event into a Struct envelope.
func (s *Serializer) Serialize(event cqrs.DomainEvent) ([]byte, error) {
	if event == nil {
		return nil, cqrs.NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	envelope, err := toEnvelope(event)
	if err != nil {
		return nil, cqrs.NewSerializationError(event.EventType(), "serialize", err)
	}

	data, err := s.marshal.Marshal(envelope)
	if err != nil {
		return nil, cqrs.NewSerializationError(event.EventType(), "serialize", err)
	}
	return data, nil
}

// Deserialize decodes a Struct envelope into the registered event type.
func (s *Serializer) Deserialize(data []byte, eventType string) (cqrs.DomainEvent, error) {
	if len(data) == 0 {
		return nil, cqrs.NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	target, finish, err := s.registry.New(eventType)
	if err != nil {
		return nil, err
	}

	envelope, err := unmarshalEnvelope(data)
	if err != nil {
		return nil, cqrs.NewSerializationError(eventType, "deserialize", err)
	}

	fields := envelope.GetFields()
	if got := fields[fieldType].GetStringValue(); got != eventType {
		return nil, cqrs.NewSerializationError(eventType, "deserialize",
			fmt.Errorf("%w: envelope holds %q", ErrTypeMismatch, got))
	}

	payload, ok := fields[fieldData].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, cqrs.NewSerializationError(eventType, "deserialize", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal([]byte(payload.StringValue), target); err != nil {
		return nil, cqrs.NewSerializationError(eventType, "deserialize", err)
	}

	return finish()
}

// Inspect returns the event type and version recorded in an envelope
// without decoding the payload.
func Inspect(data []byte) (eventType, eventVersion string, err error) {
	envelope, err := unmarshalEnvelope(data)
	if err != nil {
		return "", "", err
	}
	fields := envelope.GetFields()
	return fields[fieldType].GetStringValue(), fields[fieldVersion].GetStringValue(), nil
}

func toEnvelope(event cqrs.DomainEvent) (*structpb.Struct, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType:    structpb.NewStringValue(event.EventType()),
		fieldVersion: structpb.NewStringValue(event.EventVersion()),
		fieldData:    structpb.NewStringValue(string(raw)),
	}}, nil
}

func unmarshalEnvelope(data []byte) (*structpb.Struct, error) {
	envelope := &structpb.Struct{}
	if err := proto.Unmarshal(data, envelope); err != nil {
		return nil, err
	}
	if _, ok := envelope.GetFields()[fieldType]; !ok {
		return nil, ErrMalformedEnvelope
	}
	return envelope, nil
}

var _ cqrs.Serializer = (*Serializer)(nil)
var _ cqrs.EventRegisterer = (*Serializer)(nil)
