package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// Append writes events in one transaction. The streams row is created if
// missing and locked before the version check.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	switch {
	case a.closed.Load():
		return nil, ErrAdapterClosed
	case streamID == "":
		return nil, ErrEmptyStreamID
	case len(events) == 0:
		return nil, ErrNoEvents
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, a.sql.ensureStream, streamID, adapters.StreamCategory(streamID)); err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to create stream: %w", err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx, a.sql.lockStream, streamID).Scan(&version); err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to get stream version: %w", err)
	}
	if err := adapters.CheckVersion(streamID, expectedVersion, version, version > 0); err != nil {
		return nil, err
	}

	stored := make([]adapters.StoredEvent, 0, len(events))
	for _, rec := range events {
		version++
		ev, err := a.insert(ctx, tx, streamID, version, rec)
		if isUniqueViolation(err) {
			return nil, adapters.NewConcurrencyError(streamID, expectedVersion, version-1)
		}
		if err != nil {
			return nil, err
		}
		stored = append(stored, ev)
	}

	if _, err := tx.ExecContext(ctx, a.sql.bumpStream, version, streamID); err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to update stream version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to commit transaction: %w", err)
	}
	return stored, nil
}

// insert returns the raw driver error on a failed INSERT so the caller can
// detect unique violations.
func (a *PostgresAdapter) insert(ctx context.Context, tx *sql.Tx, streamID string, version int64, rec adapters.EventRecord) (adapters.StoredEvent, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return adapters.StoredEvent{}, fmt.Errorf("cqrs/postgres: failed to marshal metadata: %w", err)
	}
	data := rec.Data
	if data == nil {
		data = []byte{}
	}

	ev := adapters.StoredEvent{
		ID:            uuid.NewString(),
		StreamID:      streamID,
		Type:          rec.Type,
		SchemaVersion: rec.SchemaVersion,
		Data:          rec.Data,
		Metadata:      adapters.CopyMetadata(rec.Metadata),
		Version:       version,
	}
	var position int64
	err = tx.QueryRowContext(ctx, a.sql.insertEvent,
		ev.ID, streamID, version, rec.Type, rec.SchemaVersion, data, string(meta),
	).Scan(&position, &ev.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return ev, err
		}
		return ev, fmt.Errorf("cqrs/postgres: failed to insert event: %w", err)
	}
	ev.GlobalPosition = uint64(position)
	return ev, nil
}

// Load returns the events of streamID with a version above fromVersion. A
// missing stream yields an empty slice.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	rows, err := a.db.QueryContext(ctx, a.sql.loadEvents, streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	events := []adapters.StoredEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cqrs/postgres: error iterating events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (adapters.StoredEvent, error) {
	var (
		ev       adapters.StoredEvent
		position int64
		meta     []byte
	)
	err := rows.Scan(&position, &ev.ID, &ev.StreamID, &ev.Version, &ev.Type,
		&ev.SchemaVersion, &ev.Data, &meta, &ev.Timestamp)
	if err != nil {
		return ev, fmt.Errorf("cqrs/postgres: failed to scan event: %w", err)
	}
	ev.GlobalPosition = uint64(position)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
			return ev, fmt.Errorf("cqrs/postgres: failed to unmarshal metadata: %w", err)
		}
	}
	return ev, nil
}
