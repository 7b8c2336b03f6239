// Package postgres stores events and views in PostgreSQL through
// database/sql. NewAdapter uses the pgx stdlib driver; Open takes any
// registered driver name, including lib/pq's "postgres".
//
//	adapter, err := postgres.NewAdapter(os.Getenv("DATABASE_URL"), postgres.WithSchema("cqrs"))
//	if err != nil {
//		return err
//	}
//	if err := adapter.Initialize(ctx); err != nil {
//		return err
//	}
//	store := cqrs.New(adapter)
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"go.uber.org/atomic"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

const (
	DefaultSchema = "cqrs"
	DefaultDriver = "pgx"

	// SQLSTATE unique_violation
	uniqueViolation = "23505"
)

const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// Re-exported so callers can match errors without importing adapters.
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrInvalidVersion      = adapters.ErrInvalidVersion
	ErrViewNotFound        = adapters.ErrViewNotFound
)

var (
	_ adapters.EventStoreAdapter  = (*PostgresAdapter)(nil)
	_ adapters.StreamQueryAdapter = (*PostgresAdapter)(nil)
	_ adapters.ViewStore          = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker      = (*PostgresAdapter)(nil)
	_ adapters.SchemaProvider     = (*PostgresAdapter)(nil)
)

// PostgresAdapter keeps streams, events and views in three tables of one
// schema. Appends to a stream are serialized by a row lock on its streams
// row.
type PostgresAdapter struct {
	db     *sql.DB
	schema string
	sql    statements
	closed *atomic.Bool
	pool   poolConfig
}

type poolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

type Option func(*PostgresAdapter)

// WithSchema places the tables in schema. An empty name keeps the default.
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		if schema != "" {
			a.schema = schema
		}
	}
}

func WithMaxConnections(n int) Option {
	return func(a *PostgresAdapter) { a.pool.maxOpen = n }
}

func WithMaxIdleConnections(n int) Option {
	return func(a *PostgresAdapter) { a.pool.maxIdle = n }
}

func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *PostgresAdapter) { a.pool.maxLifetime = d }
}

// NewAdapter is Open with the pgx driver.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	return Open(DefaultDriver, connStr, opts...)
}

// Open connects lazily with the named database/sql driver. Nothing is sent
// to the server until the first call.
func Open(driver, connStr string, opts ...Option) (*PostgresAdapter, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("cqrs/postgres: failed to open database: %w", err)
	}
	return NewAdapterWithDB(db, opts...), nil
}

// NewAdapterWithDB wraps an existing pool. Pool options override the
// pool's current settings only when they are positive.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *PostgresAdapter {
	a := newAdapter(opts)
	a.db = db

	if a.pool.maxOpen > 0 {
		db.SetMaxOpenConns(a.pool.maxOpen)
	}
	if a.pool.maxIdle > 0 {
		db.SetMaxIdleConns(a.pool.maxIdle)
	}
	if a.pool.maxLifetime > 0 {
		db.SetConnMaxLifetime(a.pool.maxLifetime)
	}
	return a
}

func newAdapter(opts []Option) *PostgresAdapter {
	a := &PostgresAdapter{schema: DefaultSchema, closed: atomic.NewBool(false)}
	for _, opt := range opts {
		opt(a)
	}
	a.sql = newStatements(a.schema)
	return a
}

func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close closes the pool once; later calls return nil.
func (a *PostgresAdapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.db.Close()
}

func (a *PostgresAdapter) DB() *sql.DB { return a.db }

func (a *PostgresAdapter) Schema() string { return a.schema }

// isUniqueViolation understands both pgx and lib/pq errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
