package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

var _ adapters.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps idempotency records in the adapter's schema. The
// table is created by the adapter's Initialize.
type IdempotencyStore struct {
	adapter *PostgresAdapter
}

func NewIdempotencyStore(adapter *PostgresAdapter) *IdempotencyStore {
	return &IdempotencyStore{adapter: adapter}
}

// Get returns nil, nil for unknown and expired keys.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*adapters.IdempotencyRecord, error) {
	a := s.adapter
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	var r adapters.IdempotencyRecord
	err := a.db.QueryRowContext(ctx, a.sql.getIdempotency, key).Scan(
		&r.Key, &r.CommandType, &r.AggregateID, &r.AggregateType, &r.Version,
		&r.Success, &r.Error, &r.ProcessedAt, &r.ExpiresAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("cqrs/postgres: failed to get idempotency record: %w", err)
	}
	return &r, nil
}

// Store upserts record.
func (s *IdempotencyStore) Store(ctx context.Context, r *adapters.IdempotencyRecord) error {
	a := s.adapter
	if a.closed.Load() {
		return ErrAdapterClosed
	}

	_, err := a.db.ExecContext(ctx, a.sql.putIdempotency,
		r.Key, r.CommandType, r.AggregateID, r.AggregateType, r.Version,
		r.Success, r.Error, r.ProcessedAt, r.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("cqrs/postgres: failed to store idempotency record: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	a := s.adapter
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	if _, err := a.db.ExecContext(ctx, a.sql.deleteIdempotency, key); err != nil {
		return fmt.Errorf("cqrs/postgres: failed to delete idempotency record: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	a := s.adapter
	if a.closed.Load() {
		return 0, ErrAdapterClosed
	}

	res, err := a.db.ExecContext(ctx, a.sql.cleanupIdempotency, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cqrs/postgres: failed to clean up idempotency records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cqrs/postgres: failed to clean up idempotency records: %w", err)
	}
	return n, nil
}
