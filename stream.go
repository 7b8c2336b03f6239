package cqrs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// Expected versions accepted by Append besides a concrete version.
const (
	AnyVersion   int64 = adapters.AnyVersion
	NoStream     int64 = adapters.NoStream
	StreamExists int64 = adapters.StreamExists
)

// StreamID names a stream as "<Category>-<ID>", where the category is the
// aggregate type.
type StreamID struct {
	Category string
	ID       string
}

func NewStreamID(category, id string) StreamID {
	return StreamID{Category: category, ID: id}
}

// ParseStreamID splits s at its first hyphen. Both halves must be
// non-empty; the ID may itself contain hyphens.
func ParseStreamID(s string) (StreamID, error) {
	category, id, ok := strings.Cut(s, "-")
	if !ok || category == "" || id == "" {
		return StreamID{}, fmt.Errorf("cqrs: invalid stream ID format %q, expected 'Category-ID'", s)
	}
	return StreamID{Category: category, ID: id}, nil
}

func (s StreamID) String() string { return BuildStreamID(s.Category, s.ID) }

func (s StreamID) IsZero() bool { return s == StreamID{} }

func (s StreamID) Validate() error {
	switch {
	case s.Category == "":
		return errors.New("cqrs: stream category is required")
	case s.ID == "":
		return errors.New("cqrs: stream ID is required")
	}
	return nil
}

type StreamInfo struct {
	StreamID   string
	Category   string
	Version    int64
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
