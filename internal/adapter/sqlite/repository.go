package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/shotgrab/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS captures (
    key        TEXT PRIMARY KEY,
    target_url TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'submitted',
    delivery   TEXT NOT NULL DEFAULT '',
    image_url  TEXT,
    path       TEXT,
    error      TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_captures_updated ON captures(updated_at);
`

const selectColumns = `SELECT key, target_url, status, delivery, COALESCE(image_url, ''), COALESCE(path, ''),
       COALESCE(error, ''), created_at, updated_at FROM captures`

// Repository implements domain.HistoryRepository using SQLite.
type Repository struct {
	db *sql.DB
}

var _ domain.HistoryRepository = (*Repository)(nil)

// New creates a new SQLite repository, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Record inserts or updates the entry for c.Key. created_at is kept from
// the first write; an empty target URL does not clear a stored one.
func (r *Repository) Record(ctx context.Context, c *domain.Capture) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO captures (key, target_url, status, delivery, image_url, path, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		     target_url = CASE WHEN excluded.target_url = '' THEN captures.target_url ELSE excluded.target_url END,
		     status     = excluded.status,
		     delivery   = excluded.delivery,
		     image_url  = excluded.image_url,
		     path       = excluded.path,
		     error      = excluded.error,
		     updated_at = excluded.updated_at`,
		string(c.Key), c.TargetURL, string(c.State), c.Delivery,
		nullable(c.ImageURL), nullable(c.Path), nullable(c.Error),
		c.CreatedAt.UTC(), c.UpdatedAt,
	)
	return err
}

// Get retrieves an entry by job key.
func (r *Repository) Get(ctx context.Context, key domain.JobKey) (*domain.Capture, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE key = ?`, string(key))
	return scanCapture(row)
}

// List returns up to limit entries, most recently updated first.
func (r *Repository) List(ctx context.Context, limit int) ([]domain.Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		selectColumns+` ORDER BY updated_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []domain.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, *c)
	}
	return captures, rows.Err()
}

// RecoverStale marks entries left in submitted state by an earlier process
// as failed.
func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE captures SET status = ?, error = 'interrupted before completion', updated_at = ?
		 WHERE status = ?`,
		string(domain.CaptureFailed), time.Now().UTC(), string(domain.CaptureSubmitted),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(row scanner) (*domain.Capture, error) {
	var c domain.Capture
	var key, status string
	err := row.Scan(&key, &c.TargetURL, &status, &c.Delivery, &c.ImageURL, &c.Path, &c.Error, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCaptureNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Key = domain.JobKey(key)
	c.State = domain.CaptureState(status)
	return &c, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
