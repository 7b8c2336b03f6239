// Package cqrs provides the core contract of an event-sourced aggregate together
// with the plumbing that drives it: an event store, a command framework, queries
// and serializers.
//
// An aggregate's state is never stored. It is derived by replaying the aggregate's
// events in order, starting from a default value.
//
// # Quick Start
//
// Create an event store with the in-memory adapter for development:
//
//	import (
//	    "github.com/AshkanYarmoradi/go-cqrs"
//	    "github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
//	)
//
//	store := cqrs.New(memory.NewAdapter())
//	store.RegisterEvents(CommandAFiredEvent{}, ValueClearedEvent{})
//
// For production, use the PostgreSQL adapter:
//
//	adapter, err := postgres.NewAdapter(ctx, connStr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := cqrs.New(adapter)
//
// # Defining Commands and Events
//
// Commands and events are closed sets of variants. Model each set as an interface
// with an unexported marker method and one struct per variant:
//
//	type Command interface {
//	    cqrs.Command
//	    isCommand()
//	}
//
//	type CommandA struct{ Value string }
//
//	func (CommandA) CommandType() string { return "CommandA" }
//	func (CommandA) isCommand()          {}
//
//	type Event interface {
//	    cqrs.DomainEvent
//	    isEvent()
//	}
//
//	type CommandAFiredEvent struct {
//	    Value string `json:"value"`
//	}
//
//	func (CommandAFiredEvent) EventType() string    { return "CommandAFiredEvent" }
//	func (CommandAFiredEvent) EventVersion() string { return "1.0" }
//	func (CommandAFiredEvent) isEvent()             {}
//
// # Defining Aggregates
//
// Handle validates a command against current state and returns the events it
// produces without mutating anything. Apply folds one event into state and never
// fails:
//
//	type MyAggregate struct{ Value string }
//
//	func (a *MyAggregate) AggregateType() string { return "MyAggregate" }
//
//	func (a *MyAggregate) Handle(ctx context.Context, cmd Command, svc MyServices) ([]Event, error) {
//	    switch c := cmd.(type) {
//	    case CommandA:
//	        if c.Value == "" {
//	            return nil, cqrs.NewUserError("value is required")
//	        }
//	        return []Event{CommandAFiredEvent{Value: c.Value}}, nil
//	    default:
//	        return nil, nil
//	    }
//	}
//
//	func (a *MyAggregate) Apply(event Event) {
//	    switch e := event.(type) {
//	    case CommandAFiredEvent:
//	        a.Value = e.Value
//	    default:
//	        cqrs.PanicUnknownEvent(event)
//	    }
//	}
//
// # Executing Commands
//
// A Framework loads an aggregate, runs Handle, commits the resulting events with
// optimistic concurrency and dispatches them to queries:
//
//	fw := cqrs.NewFramework[*MyAggregate, Command, Event, MyServices](
//	    store, func() *MyAggregate { return &MyAggregate{} }, MyServices{}, nil,
//	    cqrs.WithMiddleware(cqrs.RecoveryMiddleware(), cqrs.RetryMiddleware(cqrs.DefaultRetryConfig())),
//	)
//
//	result, err := fw.Execute(ctx, "agg-1", CommandA{Value: "x"})
//
// Optimistic concurrency uses the stream version:
//   - AnyVersion (-1): Skip version check
//   - NoStream (0): Stream must not exist
//   - StreamExists (-2): Stream must exist
//
// # Testing
//
// The testing/framework package runs given/when/then scenarios against an
// aggregate without any store:
//
//	framework.With[*MyAggregate, Command, Event, MyServices](newAggregate, MyServices{}).
//	    GivenNoPreviousEvents().
//	    When(CommandA{Value: "x"}).
//	    ThenExpectEvents(t, CommandAFiredEvent{Value: "x"})
package cqrs

// Version returns the library version string.
func Version() string {
	return "0.1.0"
}

// BuildStreamID creates a stream ID from an aggregate type and ID.
// This follows the convention: "{Type}-{ID}"
func BuildStreamID(aggregateType, aggregateID string) string {
	return aggregateType + "-" + aggregateID
}
