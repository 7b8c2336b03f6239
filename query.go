package cqrs

import (
	"context"
	"errors"
)

// Query receives the envelopes of every successfully committed command.
// Queries run after the commit; a failing query never undoes it.
type Query[E DomainEvent] interface {
	Dispatch(ctx context.Context, aggregateID string, events []EventEnvelope[E]) error
}

// QueryFunc adapts a function to the Query interface.
type QueryFunc[E DomainEvent] func(ctx context.Context, aggregateID string, events []EventEnvelope[E]) error

// Dispatch calls f.
func (f QueryFunc[E]) Dispatch(ctx context.Context, aggregateID string, events []EventEnvelope[E]) error {
	return f(ctx, aggregateID, events)
}

// EventTypeFilter forwards only envelopes whose payload type is listed.
// An empty list forwards everything. Nothing is dispatched when no envelope
// matches.
func EventTypeFilter[E DomainEvent](query Query[E], eventTypes ...string) Query[E] {
	if len(eventTypes) == 0 {
		return query
	}

	allowed := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		allowed[t] = true
	}

	return QueryFunc[E](func(ctx context.Context, aggregateID string, events []EventEnvelope[E]) error {
		matched := make([]EventEnvelope[E], 0, len(events))
		for _, e := range events {
			if allowed[e.Payload.EventType()] {
				matched = append(matched, e)
			}
		}
		if len(matched) == 0 {
			return nil
		}
		return query.Dispatch(ctx, aggregateID, matched)
	})
}

// GenericQuery keeps one View per aggregate up to date.
// On each dispatch it loads the view, applies the envelopes in order and
// saves it back under the version it was loaded at. The repository must
// hand out views that are not shared with its stored state; both
// repositories in this package do.
type GenericQuery[V View[E], E DomainEvent] struct {
	repo    ViewRepository[V]
	newView func() V
}

// NewGenericQuery creates a GenericQuery. newView returns the view used for
// aggregates that have none stored yet.
func NewGenericQuery[V View[E], E DomainEvent](repo ViewRepository[V], newView func() V) *GenericQuery[V, E] {
	return &GenericQuery[V, E]{
		repo:    repo,
		newView: newView,
	}
}

// Dispatch applies events to the aggregate's view and saves it.
func (q *GenericQuery[V, E]) Dispatch(ctx context.Context, aggregateID string, events []EventEnvelope[E]) error {
	if len(events) == 0 {
		return nil
	}

	view, vctx, err := q.repo.Load(ctx, aggregateID)
	if errors.Is(err, ErrViewNotFound) {
		view = q.newView()
		vctx = ViewContext{ViewID: aggregateID}
	} else if err != nil {
		return err
	}

	for _, e := range events {
		view.Update(e)
	}

	_, err = q.repo.Save(ctx, vctx, view)
	return err
}

// Load returns the view stored for aggregateID.
// Returns ErrViewNotFound if no event has reached it yet.
func (q *GenericQuery[V, E]) Load(ctx context.Context, aggregateID string) (V, error) {
	view, _, err := q.repo.Load(ctx, aggregateID)
	return view, err
}

// Repository returns the view repository backing the query.
func (q *GenericQuery[V, E]) Repository() ViewRepository[V] {
	return q.repo
}
