package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

var _ adapters.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps idempotency records in a map. Expired records are
// invisible to Get and removed by Cleanup, which can also run on a timer.
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]adapters.IdempotencyRecord
	now     func() time.Time

	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

type IdempotencyOption func(*IdempotencyStore)

// WithCleanupInterval runs Cleanup every interval until Close. Zero, the
// default, disables the timer.
func WithCleanupInterval(interval time.Duration) IdempotencyOption {
	return func(s *IdempotencyStore) { s.interval = interval }
}

// WithMaxAge is the olderThan passed to timed cleanups. Defaults to 24h.
func WithMaxAge(maxAge time.Duration) IdempotencyOption {
	return func(s *IdempotencyStore) { s.maxAge = maxAge }
}

func WithIdempotencyClock(now func() time.Time) IdempotencyOption {
	return func(s *IdempotencyStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewIdempotencyStore(opts ...IdempotencyOption) *IdempotencyStore {
	s := &IdempotencyStore{
		records: make(map[string]adapters.IdempotencyRecord),
		now:     time.Now,
		maxAge:  24 * time.Hour,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.interval > 0 {
		go s.cleanupLoop()
	} else {
		close(s.done)
	}
	return s
}

func (s *IdempotencyStore) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background(), s.maxAge)
		case <-s.stop:
			return
		}
	}
}

// Close stops the cleanup timer and waits for it. Records stay readable.
func (s *IdempotencyStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*adapters.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok || record.ExpiredAt(s.now()) {
		return nil, nil
	}
	return &record, nil
}

func (s *IdempotencyStore) Store(ctx context.Context, record *adapters.IdempotencyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key] = *record
	return nil
}

func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-olderThan)
	var removed int64
	for key, record := range s.records {
		if record.ProcessedAt.Before(cutoff) || record.ExpiredAt(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

func (s *IdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
