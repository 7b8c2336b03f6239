package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// GetStreamInfo fails with a StreamNotFoundError until the stream holds at
// least one event.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx, a.sql.streamInfo, streamID).
		Scan(&info.StreamID, &info.Category, &info.Version, &info.CreatedAt, &info.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, adapters.NewStreamNotFoundError(streamID)
	case err != nil:
		return nil, fmt.Errorf("cqrs/postgres: failed to get stream info: %w", err)
	}

	// versions are dense
	info.EventCount = info.Version
	return &info, nil
}

// GetLastPosition returns 0 for an empty store.
func (a *PostgresAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed.Load() {
		return 0, ErrAdapterClosed
	}

	var pos int64
	if err := a.db.QueryRowContext(ctx, a.sql.lastPosition).Scan(&pos); err != nil {
		return 0, fmt.Errorf("cqrs/postgres: failed to get last position: %w", err)
	}
	return uint64(pos), nil
}

// ListStreams returns streams whose ID starts with prefix, most recently
// updated first. A limit of 0 or less returns them all.
func (a *PostgresAdapter) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	query, args := a.sql.listStreams, []any{escapeLike(prefix) + "%"}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to list streams: %w", err)
	}
	defer rows.Close()

	summaries := []adapters.StreamSummary{}
	for rows.Next() {
		var s adapters.StreamSummary
		if err := rows.Scan(&s.StreamID, &s.EventCount, &s.LastUpdated, &s.LastEventType); err != nil {
			return nil, fmt.Errorf("cqrs/postgres: failed to scan stream: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cqrs/postgres: error iterating streams: %w", err)
	}
	return summaries, nil
}
