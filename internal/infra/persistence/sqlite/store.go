// Package sqlite persists the migration ledger to a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"labdoc/internal/ledger/core"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ core.Ledger = (*Store)(nil)

var schema = []string{`CREATE TABLE IF NOT EXISTS migrations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	doc_key TEXT NOT NULL,
	from_version TEXT NOT NULL,
	to_version TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL,
	steps INTEGER NOT NULL,
	before_etag TEXT NOT NULL,
	after_etag TEXT NOT NULL,
	changes TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS migrations_doc_key ON migrations (doc_key, seq)`,
}

const selectColumns = `id, doc_key, from_version, to_version, status, error, steps, before_etag, after_etag, changes, started_at, finished_at`

// Store is a SQLite-backed ledger.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating when needed) the database at path, default labdoc.db.
func New(path string) (*Store, error) {
	if path == "" {
		path = "labdoc.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps appends ordered without SQLITE_BUSY retries
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create migrations table: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Append(ctx context.Context, rec core.Record) (core.Record, error) {
	rec, err := core.Prepare(rec)
	if err != nil {
		return core.Record{}, err
	}
	var changes any
	if len(rec.Changes) > 0 {
		changes = string(rec.Changes)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO migrations (`+selectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Key, rec.From, rec.To, string(rec.Status), rec.Error, rec.Steps,
		rec.BeforeETag, rec.AfterETag, changes, formatTime(rec.StartedAt), formatTime(rec.FinishedAt))
	if err != nil {
		return core.Record{}, fmt.Errorf("insert migration %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (s *Store) History(ctx context.Context, key string) ([]core.Record, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM migrations WHERE doc_key = ? ORDER BY seq`, key)
}

func (s *Store) Latest(ctx context.Context, key string) (core.Record, bool, error) {
	recs, err := s.query(ctx, `SELECT `+selectColumns+` FROM migrations WHERE doc_key = ? ORDER BY seq DESC LIMIT 1`, key)
	if err != nil || len(recs) == 0 {
		return core.Record{}, false, err
	}
	return recs[0], true, nil
}

func (s *Store) query(ctx context.Context, q string, key string) ([]core.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, key)
	if err != nil {
		return nil, fmt.Errorf("select migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Record
	for rows.Next() {
		var (
			rec               core.Record
			status            string
			changes           sql.NullString
			started, finished string
		)
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.From, &rec.To, &status, &rec.Error, &rec.Steps,
			&rec.BeforeETag, &rec.AfterETag, &changes, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		rec.Status = core.Status(status)
		if changes.Valid {
			rec.Changes = []byte(changes.String)
		}
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if rec.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return t, nil
}
