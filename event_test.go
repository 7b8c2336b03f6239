package cqrs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionConstants(t *testing.T) {
	assert.Equal(t, int64(-1), AnyVersion)
	assert.Equal(t, int64(0), NoStream)
	assert.Equal(t, int64(-2), StreamExists)
}

func TestStreamID(t *testing.T) {
	t.Run("String formats correctly", func(t *testing.T) {
		assert.Equal(t, "MyAggregate-123", NewStreamID("MyAggregate", "123").String())
	})

	t.Run("ParseStreamID handles ID with hyphens", func(t *testing.T) {
		sid, err := ParseStreamID("MyAggregate-123-456")

		require.NoError(t, err)
		assert.Equal(t, "MyAggregate", sid.Category)
		assert.Equal(t, "123-456", sid.ID)
	})

	t.Run("ParseStreamID returns error for invalid format", func(t *testing.T) {
		for _, input := range []string{"", "MyAggregate123", "-123", "MyAggregate-"} {
			_, err := ParseStreamID(input)
			assert.Error(t, err, input)
		}
	})

	t.Run("IsZero and Validate", func(t *testing.T) {
		assert.True(t, StreamID{}.IsZero())
		assert.False(t, StreamID{ID: "1"}.IsZero())

		assert.NoError(t, NewStreamID("MyAggregate", "1").Validate())
		assert.Error(t, StreamID{ID: "1"}.Validate())
		assert.Error(t, StreamID{Category: "MyAggregate"}.Validate())
	})
}

func TestMetadata(t *testing.T) {
	t.Run("empty metadata", func(t *testing.T) {
		assert.True(t, Metadata{}.IsEmpty())
	})

	t.Run("chained methods", func(t *testing.T) {
		m := Metadata{}.
			WithCorrelationID("corr-123").
			WithCausationID("cause-456").
			WithUserID("user-789").
			WithTenantID("tenant-abc").
			WithCustom("env", "production")

		assert.Equal(t, "corr-123", m.CorrelationID)
		assert.Equal(t, "cause-456", m.CausationID)
		assert.Equal(t, "user-789", m.UserID)
		assert.Equal(t, "tenant-abc", m.TenantID)
		assert.Equal(t, "production", m.Custom["env"])
		assert.False(t, m.IsEmpty())
	})

	t.Run("WithCustom does not share the map", func(t *testing.T) {
		base := Metadata{}.WithCustom("a", "1")
		derived := base.WithCustom("b", "2")

		assert.Len(t, base.Custom, 1)
		assert.Len(t, derived.Custom, 2)
	})
}

func TestDomainEventEquality(t *testing.T) {
	assert.Equal(t, noteEvent(noteWritten{Text: "x"}), noteEvent(noteWritten{Text: "x"}))
	assert.NotEqual(t, noteEvent(noteWritten{Text: "x"}), noteEvent(noteWritten{Text: "y"}))
	assert.NotEqual(t, noteEvent(noteWritten{}), noteEvent(noteErased{}))
	assert.True(t, noteEvent(noteErased{}) == noteEvent(noteErased{}))
}

func TestEventEnvelope(t *testing.T) {
	now := time.Now()
	envelopes := []EventEnvelope[noteEvent]{
		{EventID: "e1", AggregateID: "1", AggregateType: "Note", Sequence: 1, Payload: noteWritten{Text: "a"}, Timestamp: now},
		{EventID: "e2", AggregateID: "1", AggregateType: "Note", Sequence: 2, Payload: noteErased{}, Timestamp: now},
	}

	assert.Equal(t, "Note-1", envelopes[0].StreamID())
	assert.Equal(t, []noteEvent{noteWritten{Text: "a"}, noteErased{}}, Payloads(envelopes))
}
