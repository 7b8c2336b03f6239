package adapters

import "strings"

// Expected versions with a special meaning. Any value >= 1 asks for that
// exact stream version.
const (
	AnyVersion   int64 = -1
	NoStream     int64 = 0
	StreamExists int64 = -2
)

// CheckVersion is the optimistic concurrency rule every backend applies
// before appending to streamID.
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	switch {
	case expected == AnyVersion:
		return nil
	case expected == StreamExists:
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	case expected < 0:
		return ErrInvalidVersion
	case expected == NoStream && exists, expected != NoStream && current != expected:
		return NewConcurrencyError(streamID, expected, current)
	}
	return nil
}

// StreamCategory returns the part of streamID before the first '-', which
// for aggregate streams is the aggregate type.
func StreamCategory(streamID string) string {
	category, _, _ := strings.Cut(streamID, "-")
	return category
}

// CopyMetadata returns m with its own Custom map.
func CopyMetadata(m Metadata) Metadata {
	if m.Custom == nil {
		return m
	}
	custom := make(map[string]string, len(m.Custom))
	for k, v := range m.Custom {
		custom[k] = v
	}
	m.Custom = custom
	return m
}
