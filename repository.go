package cqrs

import (
	"context"
	"fmt"
)

// Repository loads and commits one kind of aggregate through an EventStore.
// It owns the stream naming ("{AggregateType}-{AggregateID}") and the
// optimistic concurrency check between a load and the following commit.
type Repository[A Aggregate[C, E, S], C Command, E DomainEvent, S any] struct {
	store        *EventStore
	newAggregate func() A
}

// NewRepository creates a Repository. newAggregate must return a fresh
// default-state aggregate on every call.
func NewRepository[A Aggregate[C, E, S], C Command, E DomainEvent, S any](store *EventStore, newAggregate func() A) *Repository[A, C, E, S] {
	return &Repository[A, C, E, S]{
		store:        store,
		newAggregate: newAggregate,
	}
}

// Store returns the underlying event store.
func (r *Repository[A, C, E, S]) Store() *EventStore {
	return r.store
}

// AggregateType returns the type name of the aggregates this repository manages.
func (r *Repository[A, C, E, S]) AggregateType() string {
	return r.newAggregate().AggregateType()
}

// New returns a default-state aggregate.
func (r *Repository[A, C, E, S]) New() A {
	return r.newAggregate()
}

// StreamID returns the stream holding aggregateID's events.
func (r *Repository[A, C, E, S]) StreamID(aggregateID string) string {
	return BuildStreamID(r.AggregateType(), aggregateID)
}

// Load replays the aggregate's history onto a default instance.
// An aggregate without history loads as the default state at version 0.
func (r *Repository[A, C, E, S]) Load(ctx context.Context, aggregateID string) (*AggregateContext[A], error) {
	envelopes, err := r.LoadEvents(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	agg := r.newAggregate()
	var version int64
	for _, env := range envelopes {
		agg.Apply(env.Payload)
		version = env.Sequence
	}

	return &AggregateContext[A]{
		AggregateID: aggregateID,
		Aggregate:   agg,
		Version:     version,
	}, nil
}

// LoadEvents returns the aggregate's committed events in stream order.
func (r *Repository[A, C, E, S]) LoadEvents(ctx context.Context, aggregateID string) ([]EventEnvelope[E], error) {
	if aggregateID == "" {
		return nil, ErrEmptyAggregateID
	}

	aggregateType := r.AggregateType()
	streamID := BuildStreamID(aggregateType, aggregateID)

	events, err := r.store.Load(ctx, streamID)
	if err != nil {
		return nil, err
	}

	envelopes := make([]EventEnvelope[E], len(events))
	for i, e := range events {
		payload, ok := e.Data.(E)
		if !ok {
			return nil, NewSerializationError(e.Type, "deserialize",
				fmt.Errorf("decoded %T is not an event of %s", e.Data, aggregateType))
		}
		envelopes[i] = EventEnvelope[E]{
			EventID:        e.ID,
			AggregateID:    aggregateID,
			AggregateType:  aggregateType,
			Sequence:       e.Version,
			Payload:        payload,
			Metadata:       e.Metadata,
			GlobalPosition: e.GlobalPosition,
			Timestamp:      e.Timestamp,
		}
	}
	return envelopes, nil
}

// Commit appends events to the aggregate's stream, expecting the stream to
// still be at actx.Version. On a conflict nothing is written and a
// *ConcurrencyError is returned. Committing no events is a no-op.
func (r *Repository[A, C, E, S]) Commit(ctx context.Context, actx *AggregateContext[A], events []E, metadata Metadata) ([]EventEnvelope[E], error) {
	if actx == nil || actx.AggregateID == "" {
		return nil, ErrEmptyAggregateID
	}
	if len(events) == 0 {
		return nil, nil
	}

	aggregateType := actx.Aggregate.AggregateType()
	streamID := BuildStreamID(aggregateType, actx.AggregateID)

	domainEvents := make([]DomainEvent, len(events))
	for i, e := range events {
		domainEvents[i] = e
	}

	stored, err := r.store.Append(ctx, streamID, domainEvents,
		ExpectVersion(actx.Version),
		WithAppendMetadata(metadata),
	)
	if err != nil {
		return nil, err
	}

	envelopes := make([]EventEnvelope[E], len(stored))
	for i, s := range stored {
		envelopes[i] = EventEnvelope[E]{
			EventID:        s.ID,
			AggregateID:    actx.AggregateID,
			AggregateType:  aggregateType,
			Sequence:       s.Version,
			Payload:        events[i],
			Metadata:       s.Metadata,
			GlobalPosition: s.GlobalPosition,
			Timestamp:      s.Timestamp,
		}
	}
	return envelopes, nil
}
