// Package containers provides PostgreSQL fixtures for integration tests.
//
// Tests run against the server named by TEST_DATABASE_URL (for example the
// one started by docker-compose.test.yml) and are skipped when it is unset
// or unreachable. Every IntegrationTest gets its own schema, dropped when the
// test ends, so tests can run in parallel against one database.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// EnvDatabaseURL names the variable holding the test database URL.
const EnvDatabaseURL = "TEST_DATABASE_URL"

// TB is the subset of testing.TB the fixtures use.
type TB interface {
	Helper()
	Cleanup(func())
	Skipf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// IntegrationTest is a database connection bound to a private schema.
type IntegrationTest struct {
	t      TB
	ctx    context.Context
	url    string
	db     *sql.DB
	schema string
}

// Option configures an IntegrationTest.
type Option func(*config)

type config struct {
	driver       string
	schemaPrefix string
	timeout      time.Duration
}

// WithDriver selects the database/sql driver ("pgx" or "postgres").
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithSchemaPrefix sets the prefix of the generated schema name.
func WithSchemaPrefix(prefix string) Option {
	return func(c *config) {
		c.schemaPrefix = prefix
	}
}

// WithTimeout bounds the test context.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// DatabaseURL returns the test database URL, or "" when none is configured.
func DatabaseURL() string {
	return os.Getenv(EnvDatabaseURL)
}

// NewIntegrationTest connects to the test database and creates a schema for t.
func NewIntegrationTest(t TB, opts ...Option) *IntegrationTest {
	t.Helper()

	if testing.Short() {
		t.Skipf("skipping integration test in short mode")
	}

	url := DatabaseURL()
	if url == "" {
		t.Skipf("%s not set, skipping integration test", EnvDatabaseURL)
	}

	cfg := &config{driver: "pgx", schemaPrefix: "test", timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	t.Cleanup(cancel)

	db, err := Connect(ctx, cfg.driver, url)
	if err != nil {
		t.Skipf("PostgreSQL not available (run docker-compose -f docker-compose.test.yml up -d): %v", err)
	}

	schema := UniqueSchema(cfg.schemaPrefix)
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA "+pq.QuoteIdentifier(schema)); err != nil {
		_ = db.Close()
		t.Fatalf("containers: create schema %s: %v", schema, err)
	}

	t.Cleanup(func() {
		if _, err := db.Exec("DROP SCHEMA IF EXISTS " + pq.QuoteIdentifier(schema) + " CASCADE"); err != nil {
			t.Logf("containers: drop schema %s: %v", schema, err)
		}
		_ = db.Close()
	})

	return &IntegrationTest{t: t, ctx: ctx, url: url, db: db, schema: schema}
}

// Connect opens and pings a database, retrying until ctx expires.
func Connect(ctx context.Context, driver, url string) (*sql.DB, error) {
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("containers: open: %w", err)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("containers: ping: %w", err)
		case <-ticker.C:
		}
	}
}

// UniqueSchema returns a schema name that is unique within the process run.
func UniqueSchema(prefix string) string {
	return strings.ToLower(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))
}

// Context returns the test context.
func (it *IntegrationTest) Context() context.Context { return it.ctx }

// DB returns the database connection.
func (it *IntegrationTest) DB() *sql.DB { return it.db }

// Schema returns the test's schema name.
func (it *IntegrationTest) Schema() string { return it.schema }

// URL returns the database URL.
func (it *IntegrationTest) URL() string { return it.url }

// Exec runs a statement and fails the test on error.
func (it *IntegrationTest) Exec(query string, args ...any) {
	it.t.Helper()
	if _, err := it.db.ExecContext(it.ctx, query, args...); err != nil {
		it.t.Fatalf("containers: exec: %v", err)
	}
}

// Count returns the row count of a table in the test schema.
func (it *IntegrationTest) Count(table string) int64 {
	it.t.Helper()
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", pq.QuoteIdentifier(it.schema), pq.QuoteIdentifier(table))
	if err := it.db.QueryRowContext(it.ctx, query).Scan(&n); err != nil {
		it.t.Fatalf("containers: count %s: %v", table, err)
	}
	return n
}
