package cqrs

// Applier is the part of an Aggregate that folds events into state.
type Applier[E DomainEvent] interface {
	Apply(event E)
}

// Replay rebuilds an aggregate from its event history.
// It starts from newAggregate() and applies events in order.
// Two replays of the same history produce equal state.
func Replay[A Applier[E], E DomainEvent](newAggregate func() A, events []E) A {
	agg := newAggregate()
	ApplyAll(agg, events)
	return agg
}

// ApplyAll applies events to agg in order.
func ApplyAll[A Applier[E], E DomainEvent](agg A, events []E) {
	for _, event := range events {
		agg.Apply(event)
	}
}
