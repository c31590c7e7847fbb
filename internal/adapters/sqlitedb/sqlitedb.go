// Package sqlitedb opens SQLite databases with the pragmas the service relies on.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

const defaultBusyTimeoutMs = 10_000

type config struct {
	busyTimeout int
	synchronous string
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(c *config) {
		if ms >= 0 {
			c.busyTimeout = ms
		}
	}
}

// WithSynchronous sets PRAGMA synchronous.
func WithSynchronous(mode string) Option {
	return func(c *config) {
		if mode != "" {
			c.synchronous = mode
		}
	}
}

// WithSchema queues DDL to execute after the pragmas.
func WithSchema(ddl string) Option {
	return func(c *config) { c.schemas = append(c.schemas, ddl) }
}

// Open opens path, creating parent directories, and applies WAL journaling,
// the busy timeout and any queued schema. An in-memory database is pinned
// to a single connection so every query sees the same data.
func Open(ctx context.Context, path string, opts ...Option) (*sql.DB, error) {
	cfg := config{busyTimeout: defaultBusyTimeoutMs, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&cfg)
	}

	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlitedb: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open: %w", err)
	}
	if path == Memory {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA synchronous = " + cfg.synchronous,
	}
	if path != Memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, stmt := range append(pragmas, cfg.schemas...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitedb: %q: %w", stmt, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitedb: ping: %w", err)
	}
	return db, nil
}
