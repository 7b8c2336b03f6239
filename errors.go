package cqrs

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// Storage failures share their identity with the adapters package, so
// errors.Is matches whichever one the caller imports.
var (
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrInvalidVersion      = adapters.ErrInvalidVersion
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrViewNotFound        = adapters.ErrViewNotFound
)

var (
	ErrSerializationFailed    = errors.New("cqrs: serialization failed")
	ErrEventTypeNotRegistered = errors.New("cqrs: event type not registered")
	ErrEmptyAggregateID       = errors.New("cqrs: aggregate ID is required")
	// ErrUnknownEvent is matched by the value Apply panics with on an
	// undeclared variant.
	ErrUnknownEvent = errors.New("cqrs: unknown event")

	// ErrValidationFailed matches every business rejection: *UserError and
	// *ValidationError.
	ErrValidationFailed = errors.New("cqrs: validation failed")
	ErrNilCommand       = errors.New("cqrs: nil command")
	ErrHandlerPanicked  = errors.New("cqrs: handler panicked")
	ErrFrameworkClosed  = errors.New("cqrs: framework closed")

	// ErrCommandAlreadyProcessed matches the replay of a command whose
	// rejection was recorded by IdempotencyMiddleware.
	ErrCommandAlreadyProcessed = errors.New("cqrs: command already processed")
)

type (
	ConcurrencyError    = adapters.ConcurrencyError
	StreamNotFoundError = adapters.StreamNotFoundError
)

func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return adapters.NewConcurrencyError(streamID, expected, actual)
}

func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return adapters.NewStreamNotFoundError(streamID)
}

// UserError is what Handle returns when a command breaks a business rule.
// Its message is shown to the caller as is.
type UserError struct {
	Message string
}

func NewUserError(message string) *UserError {
	return &UserError{Message: message}
}

// Errorf is NewUserError with fmt.Sprintf formatting.
func Errorf(format string, args ...interface{}) *UserError {
	return NewUserError(fmt.Sprintf(format, args...))
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Is(target error) bool { return target == ErrValidationFailed }

// SerializationError wraps a codec failure for one event type. Operation is
// "serialize" or "deserialize".
type SerializationError struct {
	EventType string
	Operation string
	Cause     error
}

func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{EventType: eventType, Operation: operation, Cause: cause}
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cqrs: failed to %s event type %q: %v", e.Operation, e.EventType, e.Cause)
}

func (e *SerializationError) Is(target error) bool { return target == ErrSerializationFailed }

func (e *SerializationError) Unwrap() error { return e.Cause }

// EventTypeNotRegisteredError names a stored type tag with no registered
// Go type.
type EventTypeNotRegisteredError struct {
	EventType string
}

func NewEventTypeNotRegisteredError(eventType string) *EventTypeNotRegisteredError {
	return &EventTypeNotRegisteredError{EventType: eventType}
}

func (e *EventTypeNotRegisteredError) Error() string {
	return fmt.Sprintf("cqrs: event type %q not registered", e.EventType)
}

func (e *EventTypeNotRegisteredError) Is(target error) bool {
	return target == ErrEventTypeNotRegistered
}

func (e *EventTypeNotRegisteredError) Unwrap() error { return ErrEventTypeNotRegistered }

// UnknownEventError is the panic value of PanicUnknownEvent.
type UnknownEventError struct {
	EventType string
	GoType    string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("cqrs: unknown event %q (%s)", e.EventType, e.GoType)
}

func (e *UnknownEventError) Is(target error) bool { return target == ErrUnknownEvent }

func (e *UnknownEventError) Unwrap() error { return ErrUnknownEvent }

// PanicUnknownEvent panics with an *UnknownEventError. It belongs in the
// default branch of an Apply type switch.
func PanicUnknownEvent(event DomainEvent) {
	e := &UnknownEventError{GoType: fmt.Sprintf("%T", event)}
	if event != nil {
		e.EventType = event.EventType()
	}
	panic(e)
}

// PanicError is returned by RecoveryMiddleware with the recovered value and
// the goroutine stack.
type PanicError struct {
	CommandType string
	Value       interface{}
	Stack       string
}

func NewPanicError(cmdType string, value interface{}, stack string) *PanicError {
	return &PanicError{CommandType: cmdType, Value: value, Stack: stack}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("cqrs: handler panicked while processing %q: %v", e.CommandType, e.Value)
}

func (e *PanicError) Is(target error) bool { return target == ErrHandlerPanicked }

func (e *PanicError) Unwrap() error { return ErrHandlerPanicked }
