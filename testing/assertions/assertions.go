// Package assertions provides assertions over domain events and committed
// event envelopes, including readable diffs between event sequences.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// AssertEventTypes checks that events have the expected event types, in order.
func AssertEventTypes[E cqrs.DomainEvent](t TB, events []E, types ...string) {
	t.Helper()

	if len(events) != len(types) {
		t.Fatalf("Expected %d events, got %d: %s", len(types), len(events), typeList(events))
		return
	}

	for i, expected := range types {
		if actual := events[i].EventType(); actual != expected {
			t.Errorf("Event %d: expected type %s, got %s", i, expected, actual)
		}
	}
}

// AssertNoEvents checks that no events were produced.
func AssertNoEvents[E cqrs.DomainEvent](t TB, events []E) {
	t.Helper()

	if len(events) > 0 {
		t.Errorf("Expected no events, got %d: %s", len(events), typeList(events))
	}
}

// AssertEventAt checks the event at index against expected.
func AssertEventAt[E cqrs.DomainEvent](t TB, events []E, index int, expected E) {
	t.Helper()

	if index < 0 || index >= len(events) {
		t.Fatalf("Event index %d out of range, have %d events", index, len(events))
		return
	}
	if !reflect.DeepEqual(events[index], expected) {
		t.Errorf("Event %d mismatch:\nExpected: %#v\nActual: %#v", index, expected, events[index])
	}
}

// AssertLastEvent checks the last event against expected.
func AssertLastEvent[E cqrs.DomainEvent](t TB, events []E, expected E) {
	t.Helper()

	if len(events) == 0 {
		t.Fatalf("Expected last event %s, got no events", expected.EventType())
		return
	}
	AssertEventAt(t, events, len(events)-1, expected)
}

// AssertContainsEvent checks that expected occurs somewhere in events.
func AssertContainsEvent[E cqrs.DomainEvent](t TB, events []E, expected E) {
	t.Helper()

	if CountMatches(events, MatchEvent(expected)) == 0 {
		t.Errorf("Events do not contain %#v: %s", expected, typeList(events))
	}
}

// AssertEventsEqual fails with a diff when actual differs from expected.
func AssertEventsEqual[E cqrs.DomainEvent](t TB, expected, actual []E) {
	t.Helper()

	if diffs := DiffEvents(expected, actual); len(diffs) > 0 {
		t.Error(FormatDiffs(diffs))
	}
}

// Payloads extracts the payloads of envelopes.
func Payloads[E cqrs.DomainEvent](envelopes []cqrs.EventEnvelope[E]) []E {
	events := make([]E, len(envelopes))
	for i, env := range envelopes {
		events[i] = env.Payload
	}
	return events
}

// AssertSequences checks that envelopes belong to aggregateID and carry
// contiguous sequence numbers starting at first.
func AssertSequences[E cqrs.DomainEvent](t TB, envelopes []cqrs.EventEnvelope[E], aggregateID string, first int64) {
	t.Helper()

	for i, env := range envelopes {
		if env.AggregateID != aggregateID {
			t.Errorf("Envelope %d: expected aggregate %s, got %s", i, aggregateID, env.AggregateID)
		}
		if want := first + int64(i); env.Sequence != want {
			t.Errorf("Envelope %d: expected sequence %d, got %d", i, want, env.Sequence)
		}
	}
}

// AssertMetadata checks that every envelope carries expected metadata.
func AssertMetadata[E cqrs.DomainEvent](t TB, envelopes []cqrs.EventEnvelope[E], expected cqrs.Metadata) {
	t.Helper()

	for i, env := range envelopes {
		if !reflect.DeepEqual(env.Metadata, expected) {
			t.Errorf("Envelope %d metadata mismatch:\nExpected: %+v\nActual: %+v", i, expected, env.Metadata)
		}
	}
}

// DiffType is the kind of an EventDiff.
type DiffType int

const (
	// DiffMissing indicates an expected event was not present.
	DiffMissing DiffType = iota
	// DiffExtra indicates an unexpected event was present.
	DiffExtra
	// DiffMismatch indicates the events at one index differ.
	DiffMismatch
)

// String returns a human-readable representation of the diff type.
func (d DiffType) String() string {
	switch d {
	case DiffMissing:
		return "missing"
	case DiffExtra:
		return "extra"
	case DiffMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// EventDiff is one difference between an expected and an actual sequence.
type EventDiff struct {
	Index    int
	Expected cqrs.DomainEvent
	Actual   cqrs.DomainEvent
	Type     DiffType
}

// DiffEvents compares expected and actual index by index.
func DiffEvents[E cqrs.DomainEvent](expected, actual []E) []EventDiff {
	var diffs []EventDiff

	n := len(expected)
	if len(actual) > n {
		n = len(actual)
	}

	for i := 0; i < n; i++ {
		switch {
		case i >= len(expected):
			diffs = append(diffs, EventDiff{Index: i, Actual: actual[i], Type: DiffExtra})
		case i >= len(actual):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Type: DiffMissing})
		case !reflect.DeepEqual(expected[i], actual[i]):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Actual: actual[i], Type: DiffMismatch})
		}
	}

	return diffs
}

// FormatDiffs renders diffs one event per block, "-" expected and "+" actual.
func FormatDiffs(diffs []EventDiff) string {
	if len(diffs) == 0 {
		return "no differences"
	}

	var b strings.Builder
	b.WriteString("Event differences:\n")
	for _, d := range diffs {
		fmt.Fprintf(&b, "  Event %d (%s):\n", d.Index, d.Type)
		if d.Expected != nil {
			fmt.Fprintf(&b, "    - %s %+v\n", d.Expected.EventType(), d.Expected)
		}
		if d.Actual != nil {
			fmt.Fprintf(&b, "    + %s %+v\n", d.Actual.EventType(), d.Actual)
		}
	}
	return b.String()
}

// EventMatcher selects events.
type EventMatcher[E cqrs.DomainEvent] func(event E) bool

// MatchEventType matches events by event type.
func MatchEventType[E cqrs.DomainEvent](eventType string) EventMatcher[E] {
	return func(event E) bool {
		return event.EventType() == eventType
	}
}

// MatchEvent matches events deeply equal to expected.
func MatchEvent[E cqrs.DomainEvent](expected E) EventMatcher[E] {
	return func(event E) bool {
		return reflect.DeepEqual(event, expected)
	}
}

// AssertAnyMatch checks that at least one event matches.
func AssertAnyMatch[E cqrs.DomainEvent](t TB, events []E, matcher EventMatcher[E]) {
	t.Helper()

	if CountMatches(events, matcher) == 0 {
		t.Errorf("No event matched: %s", typeList(events))
	}
}

// AssertNoneMatch checks that no event matches.
func AssertNoneMatch[E cqrs.DomainEvent](t TB, events []E, matcher EventMatcher[E]) {
	t.Helper()

	if n := CountMatches(events, matcher); n > 0 {
		t.Errorf("Expected no matching events, got %d", n)
	}
}

// CountMatches returns the number of matching events.
func CountMatches[E cqrs.DomainEvent](events []E, matcher EventMatcher[E]) int {
	return len(FilterEvents(events, matcher))
}

// FilterEvents returns the matching events in order.
func FilterEvents[E cqrs.DomainEvent](events []E, matcher EventMatcher[E]) []E {
	var out []E
	for _, e := range events {
		if matcher(e) {
			out = append(out, e)
		}
	}
	return out
}

func typeList[E cqrs.DomainEvent](events []E) string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType()
	}
	return "[" + strings.Join(types, ", ") + "]"
}
