package adapters

import (
	"errors"
	"fmt"
)

var (
	ErrConcurrencyConflict = errors.New("cqrs: concurrency conflict")
	ErrStreamNotFound      = errors.New("cqrs: stream not found")
	ErrEmptyStreamID       = errors.New("cqrs: stream ID is required")
	ErrNoEvents            = errors.New("cqrs: no events to append")
	ErrInvalidVersion      = errors.New("cqrs: invalid version")
	ErrAdapterClosed       = errors.New("cqrs: adapter is closed")
	ErrViewNotFound        = errors.New("cqrs: view not found")
)

// ConcurrencyError reports a stream or view that moved past the version the
// writer expected. It matches ErrConcurrencyConflict.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expected, ActualVersion: actual}
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("cqrs: concurrency conflict on stream %q: expected version %d, actual version %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrencyConflict }
func (e *ConcurrencyError) Unwrap() error        { return ErrConcurrencyConflict }

// StreamNotFoundError names the missing stream. It matches ErrStreamNotFound.
type StreamNotFoundError struct {
	StreamID string
}

func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("cqrs: stream %q not found", e.StreamID)
}

func (e *StreamNotFoundError) Is(target error) bool { return target == ErrStreamNotFound }
func (e *StreamNotFoundError) Unwrap() error        { return ErrStreamNotFound }
