package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/fedrec/internal/adapters/sqlitedb"
	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS model_snapshots (
	version    INTEGER PRIMARY KEY,
	created_at TEXT    NOT NULL,
	payload    BLOB    NOT NULL
)`

// SQLiteStore keeps one row per version in model_snapshots.
type SQLiteStore struct {
	db     *sql.DB
	owned  bool
	logger logger.Logger
}

// OpenSQLiteStore opens path (or a private in-memory database when empty)
// and creates the table if needed.
func OpenSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		path = sqlitedb.Memory
	}
	db, err := sqlitedb.Open(ctx, path, sqlitedb.WithSchema(sqliteSchema))
	if err != nil {
		return nil, fmt.Errorf("open sqlite model store: %w", err)
	}
	s := newSettings(opts)
	return &SQLiteStore{db: db, owned: true, logger: s.logger.Named("sqlite")}, nil
}

// NewSQLiteStore uses an existing connection, which the caller keeps owning.
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create model_snapshots: %w", err)
	}
	s := newSettings(opts)
	return &SQLiteStore{db: db, logger: s.logger.Named("sqlite")}, nil
}

// Save inserts state; an existing version leaves the table untouched.
func (s *SQLiteStore) Save(ctx context.Context, state *model.GlobalModelState) error {
	start := time.Now()
	b, err := encodeState(state)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO model_snapshots (version, created_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(version) DO NOTHING`,
		int64(state.Version), state.CreatedAt.UTC().Format(time.RFC3339Nano), b)
	if err != nil {
		return fmt.Errorf("insert version %d: %w", state.Version, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert version %d: %w", state.Version, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrVersionExists, state.Version)
	}
	metrics.RecordPersistenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	s.logger.Debug(ctx, "snapshot stored", logger.Any("version", state.Version), logger.Int("bytes", len(b)))
	return nil
}

// LoadLatest returns the row with the highest version.
func (s *SQLiteStore) LoadLatest(ctx context.Context) (*model.GlobalModelState, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM model_snapshots ORDER BY version DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load latest model: %w", err)
	}
	st, err := decodeState(raw)
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}

// Count returns the number of rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count models: %w", err)
	}
	return n, nil
}

// Close closes the connection if the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
