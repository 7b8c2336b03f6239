package cqrs

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Framework executes commands against one kind of aggregate.
//
// Each Execute call loads the aggregate from its event stream, runs Handle
// with the configured services, folds the resulting events into the loaded
// instance, commits them and finally dispatches the committed envelopes to
// queries.
// Calls for the same aggregate ID are serialized within the process; across
// processes the stream's expected version rejects a concurrent writer with a
// *ConcurrencyError.
type Framework[A Aggregate[C, E, S], C Command, E DomainEvent, S any] struct {
	repo     *Repository[A, C, E, S]
	services S
	queries  []Query[E]
	logger   Logger
	locks    *keyedLock
	closed   *atomic.Bool

	mu         sync.RWMutex
	middleware []Middleware
}

// FrameworkOption configures a Framework.
type FrameworkOption func(*frameworkConfig)

type frameworkConfig struct {
	logger     Logger
	middleware []Middleware
}

// WithMiddleware adds middleware around every Execute call.
// Middleware runs in the order it was added.
func WithMiddleware(middleware ...Middleware) FrameworkOption {
	return func(c *frameworkConfig) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithFrameworkLogger sets the logger used for query failures.
// Defaults to the event store's logger.
func WithFrameworkLogger(l Logger) FrameworkOption {
	return func(c *frameworkConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewFramework creates a Framework. newAggregate must return a fresh
// default-state aggregate on every call. services is passed unchanged to
// every Handle call. queries receive committed envelopes in the given order.
func NewFramework[A Aggregate[C, E, S], C Command, E DomainEvent, S any](
	store *EventStore,
	newAggregate func() A,
	services S,
	queries []Query[E],
	opts ...FrameworkOption,
) *Framework[A, C, E, S] {
	config := &frameworkConfig{logger: store.Logger()}
	for _, opt := range opts {
		opt(config)
	}

	return &Framework[A, C, E, S]{
		repo:       NewRepository[A, C, E, S](store, newAggregate),
		services:   services,
		queries:    append([]Query[E](nil), queries...),
		logger:     config.logger,
		locks:      newKeyedLock(),
		closed:     atomic.NewBool(false),
		middleware: config.middleware,
	}
}

// Repository returns the repository the framework loads and commits through.
func (f *Framework[A, C, E, S]) Repository() *Repository[A, C, E, S] {
	return f.repo
}

// Use adds middleware to the framework.
func (f *Framework[A, C, E, S]) Use(middleware ...Middleware) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.middleware = append(f.middleware, middleware...)
}

// Execute runs cmd against the aggregate identified by aggregateID.
//
// A *UserError from Handle is returned unchanged and nothing is committed.
// A command that produces no events succeeds without touching the store.
// Query failures are logged and do not fail the command.
func (f *Framework[A, C, E, S]) Execute(ctx context.Context, aggregateID string, cmd C) (CommandResult, error) {
	return f.ExecuteWithMetadata(ctx, aggregateID, cmd, Metadata{})
}

// ExecuteWithMetadata is Execute with metadata stamped onto every committed
// event. Correlation, causation and tenant IDs carried by ctx fill fields
// metadata leaves empty.
func (f *Framework[A, C, E, S]) ExecuteWithMetadata(ctx context.Context, aggregateID string, cmd C, metadata Metadata) (CommandResult, error) {
	if f.closed.Load() {
		return NewErrorResult(ErrFrameworkClosed), ErrFrameworkClosed
	}

	if Command(cmd) == nil {
		return NewErrorResult(ErrNilCommand), ErrNilCommand
	}

	if aggregateID == "" {
		return NewErrorResult(ErrEmptyAggregateID), ErrEmptyAggregateID
	}

	f.mu.RLock()
	middleware := make([]Middleware, len(f.middleware))
	copy(middleware, f.middleware)
	f.mu.RUnlock()

	final := func(ctx context.Context, aggregateID string, _ Command) (CommandResult, error) {
		return f.execute(ctx, aggregateID, cmd)
	}

	chain := ChainMiddleware(middleware...)(final)

	if !metadata.IsEmpty() {
		ctx = ContextWithMetadata(ctx, metadata)
	}
	return chain(ctx, aggregateID, cmd)
}

func (f *Framework[A, C, E, S]) execute(ctx context.Context, aggregateID string, cmd C) (CommandResult, error) {
	unlock, err := f.locks.lock(ctx, aggregateID)
	if err != nil {
		return NewErrorResult(err), err
	}
	defer unlock()

	actx, err := f.repo.Load(ctx, aggregateID)
	if err != nil {
		return NewErrorResult(err), err
	}

	events, err := actx.Aggregate.Handle(ctx, cmd, f.services)
	if err != nil {
		return NewErrorResult(err), err
	}

	result := NewSuccessResult(aggregateID, actx.Version)
	result.AggregateType = actx.Aggregate.AggregateType()

	if len(events) == 0 {
		result.Data = actx.Aggregate
		return result, nil
	}

	// The loaded instance is private to this call and discarded when the
	// commit fails. An event Apply cannot take panics here, before anything
	// is written.
	ApplyAll(actx.Aggregate, events)

	envelopes, err := f.repo.Commit(ctx, actx, events, MetadataFromContext(ctx))
	if err != nil {
		return NewErrorResult(err), err
	}

	result.Version = envelopes[len(envelopes)-1].Sequence
	result.Events = len(envelopes)
	result.Data = actx.Aggregate

	f.dispatch(ctx, aggregateID, envelopes)

	return result, nil
}

func (f *Framework[A, C, E, S]) dispatch(ctx context.Context, aggregateID string, envelopes []EventEnvelope[E]) {
	var errs error
	for _, q := range f.queries {
		errs = multierr.Append(errs, q.Dispatch(ctx, aggregateID, envelopes))
	}

	for _, err := range multierr.Errors(errs) {
		f.logger.Error("query dispatch failed",
			"aggregateId", aggregateID,
			"events", len(envelopes),
			"error", err,
		)
	}
}

// Load returns the current state of an aggregate without executing anything.
func (f *Framework[A, C, E, S]) Load(ctx context.Context, aggregateID string) (*AggregateContext[A], error) {
	return f.repo.Load(ctx, aggregateID)
}

// ExecuteAsync runs Execute in a goroutine. The returned channel yields
// exactly one result and is then closed.
func (f *Framework[A, C, E, S]) ExecuteAsync(ctx context.Context, aggregateID string, cmd C) <-chan ExecuteResult {
	resultCh := make(chan ExecuteResult, 1)

	go func() {
		defer close(resultCh)

		result, err := f.Execute(ctx, aggregateID, cmd)
		resultCh <- ExecuteResult{
			CommandResult: result,
			Error:         err,
		}
	}()

	return resultCh
}

// ExecuteAll executes commands against one aggregate sequentially, in order.
// It stops at the first failing command; the returned slice holds the
// results up to and including that command.
func (f *Framework[A, C, E, S]) ExecuteAll(ctx context.Context, aggregateID string, cmds ...C) ([]ExecuteResult, error) {
	results := make([]ExecuteResult, 0, len(cmds))

	for _, cmd := range cmds {
		result, err := f.Execute(ctx, aggregateID, cmd)
		results = append(results, ExecuteResult{
			CommandResult: result,
			Error:         err,
		})
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// Close stops the framework from accepting commands. Executions already in
// flight finish normally.
func (f *Framework[A, C, E, S]) Close() error {
	f.closed.Store(true)
	return nil
}

// IsClosed returns true if the framework has been closed.
func (f *Framework[A, C, E, S]) IsClosed() bool {
	return f.closed.Load()
}

// ExecuteResult contains the result of an asynchronous or batched execution.
type ExecuteResult struct {
	CommandResult
	Error error
}

// IsSuccess returns true if the execution was successful.
func (r ExecuteResult) IsSuccess() bool {
	return r.Error == nil && r.CommandResult.IsSuccess()
}

// keyedLock is a set of mutexes addressed by key. Waiting for a key honors
// context cancellation. Entries are dropped once nobody holds or waits for them.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*keyLock)}
}

func (k *keyedLock) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLock) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
