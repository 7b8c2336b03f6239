// Package framework provides given/when/then test scenarios for aggregates.
//
// A scenario replays a fixed event history onto a default aggregate, submits
// one command to Handle and asserts on the events or error it returns:
//
//	framework.With[*Account, AccountCommand, AccountEvent, Services](t, NewAccount, services).
//		Given(Opened{ID: "a-1"}).
//		When(Deposit{Amount: 10}).
//		ThenExpectEvents(Deposited{Amount: 10})
//
// Nothing is persisted. The aggregate surface used is Apply, Handle and
// AggregateType.
package framework

import (
	"context"
	"errors"
	"fmt"
	"testing"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/testing/assertions"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// Executor holds the aggregate factory, services and given history of a scenario.
type Executor[A cqrs.Aggregate[C, E, S], C cqrs.Command, E cqrs.DomainEvent, S any] struct {
	t            TB
	ctx          context.Context
	newAggregate func() A
	services     S
	given        []E
}

// With starts a scenario for the aggregate built by newAggregate.
// services is passed to Handle unchanged.
func With[A cqrs.Aggregate[C, E, S], C cqrs.Command, E cqrs.DomainEvent, S any](t TB, newAggregate func() A, services S) *Executor[A, C, E, S] {
	t.Helper()
	return &Executor[A, C, E, S]{
		t:            t,
		ctx:          context.Background(),
		newAggregate: newAggregate,
		services:     services,
	}
}

// WithContext sets the context handed to Handle.
func (x *Executor[A, C, E, S]) WithContext(ctx context.Context) *Executor[A, C, E, S] {
	x.ctx = ctx
	return x
}

// GivenNoPreviousEvents starts from the default aggregate state.
func (x *Executor[A, C, E, S]) GivenNoPreviousEvents() *Executor[A, C, E, S] {
	x.given = nil
	return x
}

// Given sets the history replayed before the command.
func (x *Executor[A, C, E, S]) Given(events ...E) *Executor[A, C, E, S] {
	x.given = append([]E(nil), events...)
	return x
}

// When replays the given history and submits cmd to Handle.
func (x *Executor[A, C, E, S]) When(cmd C) *Validator[A, E] {
	x.t.Helper()

	agg, err := x.replay()
	if err != nil {
		x.t.Fatalf("framework: replaying given events: %v", err)
		return nil
	}

	if agg.AggregateType() == "" {
		x.t.Fatalf("framework: %T has an empty aggregate type", agg)
		return nil
	}

	events, err := agg.Handle(x.ctx, cmd, x.services)

	return &Validator[A, E]{
		t:         x.t,
		aggregate: agg,
		events:    events,
		err:       err,
	}
}

// replay folds the given events into a default aggregate and turns an Apply
// panic into an error.
func (x *Executor[A, C, E, S]) replay() (agg A, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	return cqrs.Replay(x.newAggregate, x.given), nil
}

// Validator asserts on the outcome of one Handle call.
type Validator[A cqrs.Applier[E], E cqrs.DomainEvent] struct {
	t         TB
	aggregate A
	events    []E
	err       error
	applied   bool
}

// Inspect returns the raw Handle result.
func (v *Validator[A, E]) Inspect() ([]E, error) {
	return v.events, v.err
}

// ThenExpectEvents asserts Handle succeeded with exactly the expected events,
// in order.
func (v *Validator[A, E]) ThenExpectEvents(expected ...E) {
	v.t.Helper()

	if v.err != nil {
		v.t.Fatalf("Expected success but got error: %v", v.err)
		return
	}

	diffs := assertions.DiffEvents(expected, v.events)
	if len(diffs) == 0 {
		return
	}
	if len(v.events) != len(expected) {
		v.t.Fatalf("Expected %d events, got %d.\n%s", len(expected), len(v.events), assertions.FormatDiffs(diffs))
		return
	}
	v.t.Errorf("%s", assertions.FormatDiffs(diffs))
}

// ThenExpectNoEvents asserts Handle succeeded without producing events.
func (v *Validator[A, E]) ThenExpectNoEvents() {
	v.t.Helper()

	if v.err != nil {
		v.t.Fatalf("Expected success but got error: %v", v.err)
		return
	}

	if len(v.events) > 0 {
		v.t.Errorf("Expected no events, got %d: %+v", len(v.events), v.events)
	}
}

// ThenExpectError asserts Handle failed with an error matching target.
func (v *Validator[A, E]) ThenExpectError(target error) {
	v.t.Helper()

	if v.err == nil {
		v.t.Fatalf("Expected error %v but got events: %+v", target, v.events)
		return
	}

	if !errors.Is(v.err, target) {
		v.t.Errorf("Expected error %v, got %v", target, v.err)
	}
}

// ThenExpectErrorMessage asserts Handle failed with exactly message.
func (v *Validator[A, E]) ThenExpectErrorMessage(message string) {
	v.t.Helper()

	if v.err == nil {
		v.t.Fatalf("Expected error %q but got events: %+v", message, v.events)
		return
	}

	if v.err.Error() != message {
		v.t.Errorf("Expected error %q, got %q", message, v.err.Error())
	}
}

// WhenApplied folds the produced events into the replayed aggregate and
// returns it. It fails the test if Handle returned an error. Repeated calls
// return the same state.
func (v *Validator[A, E]) WhenApplied() A {
	v.t.Helper()

	if v.err != nil {
		v.t.Fatalf("Expected success but got error: %v", v.err)
		return v.aggregate
	}

	if !v.applied {
		cqrs.ApplyAll(v.aggregate, v.events)
		v.applied = true
	}
	return v.aggregate
}

// ThenExpectState folds the produced events and hands the resulting state
// to check.
func (v *Validator[A, E]) ThenExpectState(check func(state A)) {
	v.t.Helper()
	check(v.WhenApplied())
}
