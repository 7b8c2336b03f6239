package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// statements holds every SQL string the adapter runs, rendered once for
// its schema.
type statements struct {
	ddl []string

	ensureStream string
	lockStream   string
	insertEvent  string
	bumpStream   string
	loadEvents   string
	streamInfo   string
	lastPosition string
	listStreams  string
	loadView     string
	insertView   string
	updateView   string
	viewVersion  string

	getIdempotency     string
	putIdempotency     string
	deleteIdempotency  string
	cleanupIdempotency string
}

func newStatements(schema string) statements {
	q := pq.QuoteIdentifier
	streams := q(schema) + "." + q("streams")
	events := q(schema) + "." + q("events")
	views := q(schema) + "." + q("views")
	idempotency := q(schema) + "." + q("idempotency")
	index := func(name, table, column string) string {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", q(schema+"_"+name), table, column)
	}

	return statements{
		ddl: []string{
			"CREATE SCHEMA IF NOT EXISTS " + q(schema),
			`CREATE TABLE IF NOT EXISTS ` + streams + ` (
	stream_id   VARCHAR(500) PRIMARY KEY,
	category    VARCHAR(250) NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
			`CREATE TABLE IF NOT EXISTS ` + events + ` (
	global_position BIGSERIAL PRIMARY KEY,
	event_id        UUID NOT NULL UNIQUE,
	stream_id       VARCHAR(500) NOT NULL,
	version         BIGINT NOT NULL,
	event_type      VARCHAR(500) NOT NULL,
	schema_version  VARCHAR(50) NOT NULL DEFAULT '',
	data            BYTEA NOT NULL,
	metadata        JSONB,
	timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (stream_id, version)
)`,
			index("idx_streams_category", streams, "category"),
			index("idx_events_type", events, "event_type"),
			index("idx_streams_updated", streams, "updated_at DESC"),
			`CREATE TABLE IF NOT EXISTS ` + views + ` (
	view_name   VARCHAR(250) NOT NULL,
	view_id     VARCHAR(500) NOT NULL,
	version     BIGINT NOT NULL,
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (view_name, view_id)
)`,
			`CREATE TABLE IF NOT EXISTS ` + idempotency + ` (
	key             VARCHAR(500) PRIMARY KEY,
	command_type    VARCHAR(250) NOT NULL,
	aggregate_id    VARCHAR(500) NOT NULL DEFAULT '',
	aggregate_type  VARCHAR(250) NOT NULL DEFAULT '',
	version         BIGINT NOT NULL DEFAULT 0,
	success         BOOLEAN NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	processed_at    TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL
)`,
			index("idx_idempotency_expires", idempotency, "expires_at"),
		},

		ensureStream: `INSERT INTO ` + streams + ` (stream_id, category, version) VALUES ($1, $2, 0)
ON CONFLICT (stream_id) DO NOTHING`,
		lockStream: `SELECT version FROM ` + streams + ` WHERE stream_id = $1 FOR UPDATE`,
		insertEvent: `INSERT INTO ` + events + ` (event_id, stream_id, version, event_type, schema_version, data, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
RETURNING global_position, timestamp`,
		bumpStream: `UPDATE ` + streams + ` SET version = $1, updated_at = NOW() WHERE stream_id = $2`,
		loadEvents: `SELECT global_position, event_id, stream_id, version, event_type, schema_version, data, metadata, timestamp
FROM ` + events + `
WHERE stream_id = $1 AND version > $2
ORDER BY version`,
		streamInfo: `SELECT stream_id, category, version, created_at, updated_at
FROM ` + streams + `
WHERE stream_id = $1 AND version > 0`,
		lastPosition: `SELECT COALESCE(MAX(global_position), 0) FROM ` + events,
		listStreams: `SELECT s.stream_id, s.version, s.updated_at,
	COALESCE((SELECT e.event_type FROM ` + events + ` e
		WHERE e.stream_id = s.stream_id ORDER BY e.version DESC LIMIT 1), '')
FROM ` + streams + ` s
WHERE s.version > 0 AND s.stream_id LIKE $1 ESCAPE '\'
ORDER BY s.updated_at DESC, s.stream_id`,

		loadView: `SELECT version, data, updated_at FROM ` + views + ` WHERE view_name = $1 AND view_id = $2`,
		insertView: `INSERT INTO ` + views + ` (view_name, view_id, version, data) VALUES ($1, $2, 1, $3::jsonb)
ON CONFLICT (view_name, view_id) DO NOTHING`,
		updateView: `UPDATE ` + views + ` SET version = version + 1, data = $3::jsonb, updated_at = NOW()
WHERE view_name = $1 AND view_id = $2 AND version = $4`,
		viewVersion: `SELECT version FROM ` + views + ` WHERE view_name = $1 AND view_id = $2`,

		getIdempotency: `SELECT key, command_type, aggregate_id, aggregate_type, version, success, error, processed_at, expires_at
FROM ` + idempotency + `
WHERE key = $1 AND expires_at > NOW()`,
		putIdempotency: `INSERT INTO ` + idempotency + ` (key, command_type, aggregate_id, aggregate_type, version, success, error, processed_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (key) DO UPDATE SET
	command_type = EXCLUDED.command_type,
	aggregate_id = EXCLUDED.aggregate_id,
	aggregate_type = EXCLUDED.aggregate_type,
	version = EXCLUDED.version,
	success = EXCLUDED.success,
	error = EXCLUDED.error,
	processed_at = EXCLUDED.processed_at,
	expires_at = EXCLUDED.expires_at`,
		deleteIdempotency:  `DELETE FROM ` + idempotency + ` WHERE key = $1`,
		cleanupIdempotency: `DELETE FROM ` + idempotency + ` WHERE processed_at < $1 OR expires_at <= NOW()`,
	}
}

// GenerateSchema returns the DDL that Initialize runs.
func (a *PostgresAdapter) GenerateSchema() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- go-cqrs event store schema %q\n\n", a.schema)
	for _, stmt := range a.sql.ddl {
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}
	return b.String()
}

// Schema renders the DDL for schema without a database.
func Schema(schema string) string {
	return newAdapter([]Option{WithSchema(schema)}).GenerateSchema()
}

// Initialize creates the schema, tables and indexes. Running it again is a
// no-op.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	for _, stmt := range a.sql.ddl {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cqrs/postgres: failed to initialize schema: %w", err)
		}
	}
	return nil
}
