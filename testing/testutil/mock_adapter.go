package testutil

import (
	"context"
	"sync"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
	"github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
)

// FaultyAdapter is an in-memory event store whose operations can be made to
// fail. A nil error field lets the operation through to the memory adapter.
type FaultyAdapter struct {
	*memory.MemoryAdapter

	mu                 sync.Mutex
	AppendErr          error
	LoadErr            error
	GetStreamInfoErr   error
	GetLastPositionErr error
	SaveViewErr        error

	appends int
	loads   int
}

var (
	_ adapters.EventStoreAdapter = (*FaultyAdapter)(nil)
	_ adapters.ViewStore         = (*FaultyAdapter)(nil)
)

// NewFaultyAdapter creates a FaultyAdapter over an empty memory store.
func NewFaultyAdapter() *FaultyAdapter {
	return &FaultyAdapter{MemoryAdapter: memory.NewAdapter()}
}

func (f *FaultyAdapter) fault(err *error, counter *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if counter != nil {
		*counter++
	}
	return *err
}

// Append implements adapters.EventStoreAdapter.
func (f *FaultyAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := f.fault(&f.AppendErr, &f.appends); err != nil {
		return nil, err
	}
	return f.MemoryAdapter.Append(ctx, streamID, events, expectedVersion)
}

// Load implements adapters.EventStoreAdapter.
func (f *FaultyAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if err := f.fault(&f.LoadErr, &f.loads); err != nil {
		return nil, err
	}
	return f.MemoryAdapter.Load(ctx, streamID, fromVersion)
}

// GetStreamInfo implements adapters.EventStoreAdapter.
func (f *FaultyAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if err := f.fault(&f.GetStreamInfoErr, nil); err != nil {
		return nil, err
	}
	return f.MemoryAdapter.GetStreamInfo(ctx, streamID)
}

// GetLastPosition implements adapters.EventStoreAdapter.
func (f *FaultyAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if err := f.fault(&f.GetLastPositionErr, nil); err != nil {
		return 0, err
	}
	return f.MemoryAdapter.GetLastPosition(ctx)
}

// SaveView implements adapters.ViewStore.
func (f *FaultyAdapter) SaveView(ctx context.Context, viewName, viewID string, data []byte, expectedVersion int64) (int64, error) {
	if err := f.fault(&f.SaveViewErr, nil); err != nil {
		return 0, err
	}
	return f.MemoryAdapter.SaveView(ctx, viewName, viewID, data, expectedVersion)
}

// SetAppendErr changes the Append failure while other goroutines use the adapter.
func (f *FaultyAdapter) SetAppendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AppendErr = err
}

// Appends returns how many times Append was called, failed calls included.
func (f *FaultyAdapter) Appends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appends
}

// Loads returns how many times Load was called, failed calls included.
func (f *FaultyAdapter) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}
