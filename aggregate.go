package cqrs

import (
	"context"
)

// Aggregate is the state machine at the heart of event sourcing.
// Its state is never stored; it is derived by applying the aggregate's events,
// in order, to a default instance.
//
// C is the closed set of commands the aggregate accepts, E the closed set of
// events it emits and S the services handed to Handle. Implementations are
// normally pointer types so that Apply can mutate state.
type Aggregate[C Command, E DomainEvent, S any] interface {
	// AggregateType returns a constant name for this kind of aggregate
	// (e.g., "MyAggregate"). It namespaces the aggregate's event streams.
	AggregateType() string

	// Handle validates cmd against current state and returns the events that
	// record the accepted change, in the order they must be applied.
	// Handle must not mutate the aggregate. A command variant the aggregate
	// does not act on yields no events and no error. A violated business
	// precondition yields a *UserError.
	//
	// services is only used for the duration of the call. ctx bounds any
	// blocking the services do; the aggregate itself does no I/O.
	Handle(ctx context.Context, cmd C, services S) ([]E, error)

	// Apply folds one event into state. It cannot fail: events are facts.
	// An event variant the aggregate does not declare is a programming error
	// and Apply panics via PanicUnknownEvent.
	Apply(event E)
}

// AggregateContext carries a loaded aggregate together with the stream version
// it was rebuilt from. The version is the expected version for the next commit.
type AggregateContext[A any] struct {
	// AggregateID is the instance identifier.
	AggregateID string

	// Aggregate is the replayed state.
	Aggregate A

	// Version is the number of events the state was rebuilt from.
	Version int64
}

// IsNew reports whether the aggregate has no committed events.
func (c *AggregateContext[A]) IsNew() bool {
	return c.Version == 0
}
