package cqrs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// View is a read model built from an aggregate's committed events.
type View[E DomainEvent] interface {
	// Update folds one committed event into the view.
	Update(event EventEnvelope[E])
}

// ViewContext identifies a stored view and the version it was loaded at.
type ViewContext struct {
	// ViewID identifies the view instance, usually the aggregate ID.
	ViewID string

	// Version is the stored version; 0 means the view was never saved.
	Version int64
}

// ViewRepository stores views with optimistic concurrency.
type ViewRepository[V any] interface {
	// Load returns the stored view and its context.
	// Returns ErrViewNotFound if nothing is stored under viewID.
	Load(ctx context.Context, viewID string) (V, ViewContext, error)

	// Save stores view if the stored version still equals vctx.Version and
	// returns the new version. A mismatch yields a *ConcurrencyError.
	Save(ctx context.Context, vctx ViewContext, view V) (int64, error)
}

type viewEntry struct {
	data    []byte
	version int64
}

// InMemoryViewRepository keeps views in a map as JSON snapshots, the same
// documents StoreViewRepository writes. Load decodes a private copy, so
// changes a caller makes to a loaded view stay invisible until Save
// succeeds.
type InMemoryViewRepository[V any] struct {
	mu    sync.RWMutex
	views map[string]*viewEntry
}

// NewInMemoryViewRepository creates an empty in-memory view repository.
func NewInMemoryViewRepository[V any]() *InMemoryViewRepository[V] {
	return &InMemoryViewRepository[V]{
		views: make(map[string]*viewEntry),
	}
}

// Load retrieves a view by ID.
func (r *InMemoryViewRepository[V]) Load(ctx context.Context, viewID string) (V, ViewContext, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, ViewContext{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.views[viewID]
	if !ok {
		return zero, ViewContext{}, ErrViewNotFound
	}

	var view V
	if err := json.Unmarshal(entry.data, &view); err != nil {
		return zero, ViewContext{}, NewSerializationError(viewID, "deserialize", err)
	}
	return view, ViewContext{ViewID: viewID, Version: entry.version}, nil
}

// Save stores a view.
func (r *InMemoryViewRepository[V]) Save(ctx context.Context, vctx ViewContext, view V) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := json.Marshal(view)
	if err != nil {
		return 0, NewSerializationError(vctx.ViewID, "serialize", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var current int64
	if entry, ok := r.views[vctx.ViewID]; ok {
		current = entry.version
	}
	if current != vctx.Version {
		return 0, NewConcurrencyError(vctx.ViewID, vctx.Version, current)
	}

	r.views[vctx.ViewID] = &viewEntry{data: data, version: current + 1}
	return current + 1, nil
}

// Delete removes a view by ID.
func (r *InMemoryViewRepository[V]) Delete(ctx context.Context, viewID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.views[viewID]; !ok {
		return ErrViewNotFound
	}
	delete(r.views, viewID)
	return nil
}

// IDs returns the stored view IDs in ascending order.
func (r *InMemoryViewRepository[V]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of stored views.
func (r *InMemoryViewRepository[V]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Clear removes all views.
func (r *InMemoryViewRepository[V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = make(map[string]*viewEntry)
}

// StoreViewRepository persists views as JSON through an adapters.ViewStore.
type StoreViewRepository[V any] struct {
	store   adapters.ViewStore
	name    string
	newView func() V
}

// NewStoreViewRepository creates a repository storing views under name.
// newView returns the value a stored document is decoded into.
func NewStoreViewRepository[V any](store adapters.ViewStore, name string, newView func() V) *StoreViewRepository[V] {
	return &StoreViewRepository[V]{
		store:   store,
		name:    name,
		newView: newView,
	}
}

// Name returns the view name used as storage namespace.
func (r *StoreViewRepository[V]) Name() string {
	return r.name
}

// Load retrieves and decodes a view.
func (r *StoreViewRepository[V]) Load(ctx context.Context, viewID string) (V, ViewContext, error) {
	var zero V

	record, err := r.store.LoadView(ctx, r.name, viewID)
	if err != nil {
		return zero, ViewContext{}, err
	}

	view := r.newView()
	if err := json.Unmarshal(record.Data, &view); err != nil {
		return zero, ViewContext{}, NewSerializationError(r.name, "deserialize", err)
	}
	return view, ViewContext{ViewID: viewID, Version: record.Version}, nil
}

// Save encodes and stores a view.
func (r *StoreViewRepository[V]) Save(ctx context.Context, vctx ViewContext, view V) (int64, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return 0, NewSerializationError(r.name, "serialize", err)
	}
	return r.store.SaveView(ctx, r.name, vctx.ViewID, data, vctx.Version)
}
