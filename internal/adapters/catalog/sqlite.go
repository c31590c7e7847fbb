package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/okian/fedrec/internal/adapters/sqlitedb"
	"github.com/okian/fedrec/internal/domain/model"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS videos (
	id           TEXT PRIMARY KEY,
	video_vector TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT ''
)`

// SQLiteSource reads candidates from the videos table. Vectors are stored
// as JSON arrays.
type SQLiteSource struct {
	db    *sql.DB
	owned bool
}

// OpenSQLiteSource opens path and creates the videos table if needed.
func OpenSQLiteSource(ctx context.Context, path string) (*SQLiteSource, error) {
	if path == "" {
		path = sqlitedb.Memory
	}
	db, err := sqlitedb.Open(ctx, path, sqlitedb.WithSchema(sqliteSchema))
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog: %w", err)
	}
	return &SQLiteSource{db: db, owned: true}, nil
}

// Insert adds or replaces candidates, mostly for seeding and tests.
func (s *SQLiteSource) Insert(ctx context.Context, items ...model.Candidate) error {
	if err := validate(items); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, it := range items {
		vec, err := json.Marshal(it.FeatureVector)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO videos (id, video_vector, url) VALUES (?, ?, ?)`,
			it.ID, string(vec), it.URL); err != nil {
			return fmt.Errorf("insert video %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// ListCandidates returns every row ordered by rowid, so catalog order is
// insertion order.
func (s *SQLiteSource) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, video_vector, url FROM videos ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	out := []model.Candidate{}
	for rows.Next() {
		var (
			c   model.Candidate
			raw string
		)
		if err := rows.Scan(&c.ID, &raw, &c.URL); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &c.FeatureVector); err != nil {
			return nil, fmt.Errorf("%w: video %s: %w", ErrInvalidItem, c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the connection.
func (s *SQLiteSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
