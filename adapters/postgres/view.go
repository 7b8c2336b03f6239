package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

func (a *PostgresAdapter) LoadView(ctx context.Context, viewName, viewID string) (*adapters.ViewRecord, error) {
	if a.closed.Load() {
		return nil, ErrAdapterClosed
	}

	rec := &adapters.ViewRecord{ViewID: viewID}
	err := a.db.QueryRowContext(ctx, a.sql.loadView, viewName, viewID).
		Scan(&rec.Version, &rec.Data, &rec.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrViewNotFound
	case err != nil:
		return nil, fmt.Errorf("cqrs/postgres: failed to load view: %w", err)
	}
	return rec, nil
}

// SaveView writes data as JSONB when the stored version equals
// expectedVersion, where 0 means the view must not exist yet. Lost races
// surface as a ConcurrencyError keyed "<view>/<id>".
func (a *PostgresAdapter) SaveView(ctx context.Context, viewName, viewID string, data []byte, expectedVersion int64) (int64, error) {
	if a.closed.Load() {
		return 0, ErrAdapterClosed
	}

	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = a.db.ExecContext(ctx, a.sql.insertView, viewName, viewID, string(data))
	} else {
		res, err = a.db.ExecContext(ctx, a.sql.updateView, viewName, viewID, string(data), expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("cqrs/postgres: failed to save view: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cqrs/postgres: failed to save view: %w", err)
	}
	if n == 1 {
		return expectedVersion + 1, nil
	}

	var current int64
	err = a.db.QueryRowContext(ctx, a.sql.viewVersion, viewName, viewID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("cqrs/postgres: failed to read view version: %w", err)
	}
	return 0, adapters.NewConcurrencyError(viewName+"/"+viewID, expectedVersion, current)
}
