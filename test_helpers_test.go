package cqrs

// test_helpers_test.go contains shared test doubles for cqrs package tests.

import (
	"context"
	"sync"

	"github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
)

// =============================================================================
// Shared Test Logger
// =============================================================================

type testLogger struct {
	mu        sync.Mutex
	debugLogs []string
	infoLogs  []string
	warnLogs  []string
	errorLogs []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLogs = append(l.debugLogs, msg)
}

func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLogs = append(l.infoLogs, msg)
}

func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLogs = append(l.warnLogs, msg)
}

func (l *testLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLogs = append(l.errorLogs, msg)
}

func (l *testLogger) errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errorLogs...)
}

// =============================================================================
// Shared Test Domain: a note that can be written and erased
// =============================================================================

type noteCommand interface {
	Command
	isNoteCommand()
}

type writeNote struct{ Text string }

func (writeNote) CommandType() string { return "WriteNote" }
func (writeNote) isNoteCommand()      {}

type eraseNote struct{}

func (eraseNote) CommandType() string { return "EraseNote" }
func (eraseNote) isNoteCommand()      {}

// explodeNote makes Handle panic.
type explodeNote struct{}

func (explodeNote) CommandType() string { return "ExplodeNote" }
func (explodeNote) isNoteCommand()      {}

// waitNote blocks in Handle until the context is done.
type waitNote struct{}

func (waitNote) CommandType() string { return "WaitNote" }
func (waitNote) isNoteCommand()      {}

// ignoredNote is a declared command variant Handle has no branch for.
type ignoredNote struct{}

func (ignoredNote) CommandType() string { return "IgnoredNote" }
func (ignoredNote) isNoteCommand()      {}

type noteEvent interface {
	DomainEvent
	isNoteEvent()
}

type noteWritten struct {
	Text string `json:"text"`
}

func (noteWritten) EventType() string    { return "NoteWritten" }
func (noteWritten) EventVersion() string { return "1.0" }
func (noteWritten) isNoteEvent()         {}

type noteErased struct{}

func (noteErased) EventType() string    { return "NoteErased" }
func (noteErased) EventVersion() string { return "1.0" }
func (noteErased) isNoteEvent()         {}

// strayEvent is an event the note aggregate does not know how to apply.
type strayEvent struct{}

func (strayEvent) EventType() string    { return "StrayEvent" }
func (strayEvent) EventVersion() string { return "1.0" }
func (strayEvent) isNoteEvent()         {}

type noteServices struct {
	Forbidden string
}

type noteAggregate struct {
	Text string
}

func newNote() *noteAggregate { return &noteAggregate{} }

func (n *noteAggregate) AggregateType() string { return "Note" }

func (n *noteAggregate) Handle(ctx context.Context, cmd noteCommand, svc noteServices) ([]noteEvent, error) {
	switch c := cmd.(type) {
	case writeNote:
		if c.Text == "" {
			return nil, NewUserError("text is required")
		}
		if svc.Forbidden != "" && c.Text == svc.Forbidden {
			return nil, Errorf("text %q is forbidden", c.Text)
		}
		return []noteEvent{noteWritten{Text: c.Text}}, nil
	case eraseNote:
		if n.Text == "" {
			return nil, nil
		}
		return []noteEvent{noteErased{}}, nil
	case explodeNote:
		panic("boom")
	case waitNote:
		<-ctx.Done()
		return nil, ctx.Err()
	default:
		return nil, nil
	}
}

func (n *noteAggregate) Apply(event noteEvent) {
	switch e := event.(type) {
	case noteWritten:
		n.Text = e.Text
	case noteErased:
		n.Text = ""
	default:
		PanicUnknownEvent(event)
	}
}

type noteFramework = Framework[*noteAggregate, noteCommand, noteEvent, noteServices]

func newNoteStore() (*EventStore, *memory.MemoryAdapter) {
	adapter := memory.NewAdapter()
	store := New(adapter)
	store.RegisterEvents(noteWritten{}, noteErased{})
	return store, adapter
}

func newNoteRepository() (*Repository[*noteAggregate, noteCommand, noteEvent, noteServices], *memory.MemoryAdapter) {
	store, adapter := newNoteStore()
	return NewRepository[*noteAggregate, noteCommand, noteEvent, noteServices](store, newNote), adapter
}
