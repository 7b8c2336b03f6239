package memory

import (
	"context"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

func viewKey(viewName, viewID string) string {
	return viewName + "/" + viewID
}

// LoadView returns a copy of the stored view.
func (a *MemoryAdapter) LoadView(ctx context.Context, viewName, viewID string) (*adapters.ViewRecord, error) {
	var out adapters.ViewRecord
	err := a.read(ctx, func() error {
		record, ok := a.views[viewKey(viewName, viewID)]
		if !ok {
			return ErrViewNotFound
		}
		out = *record
		out.Data = append([]byte(nil), record.Data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *MemoryAdapter) SaveView(ctx context.Context, viewName, viewID string, data []byte, expectedVersion int64) (int64, error) {
	var version int64
	err := a.write(ctx, func() error {
		key := viewKey(viewName, viewID)
		var current int64
		if existing, ok := a.views[key]; ok {
			current = existing.Version
		}
		if current != expectedVersion {
			return adapters.NewConcurrencyError(key, expectedVersion, current)
		}
		version = current + 1
		a.views[key] = &adapters.ViewRecord{
			ViewID:    viewID,
			Version:   version,
			Data:      append([]byte(nil), data...),
			UpdatedAt: a.now(),
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// ViewCount counts stored views across all view names.
func (a *MemoryAdapter) ViewCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.views)
}
