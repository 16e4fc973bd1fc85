// Package postgres persists the migration ledger to Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"labdoc/internal/ledger/core"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ core.Ledger = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/labdoc?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS migrations (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		doc_key TEXT NOT NULL,
		from_version TEXT NOT NULL,
		to_version TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL,
		steps INTEGER NOT NULL,
		before_etag TEXT NOT NULL,
		after_etag TEXT NOT NULL,
		changes JSONB,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS migrations_doc_key ON migrations (doc_key, seq)`,
}

const insertColumns = `id, doc_key, from_version, to_version, status, error, steps, before_etag, after_etag, changes, started_at, finished_at`

const selectColumns = `id, doc_key, from_version, to_version, status, error, steps, before_etag, after_etag, changes::text, started_at, finished_at`

// Store is a Postgres-backed ledger.
type Store struct {
	db *sql.DB
}

// New opens a ledger using dsn (DefaultDSN when empty), pings the server and
// ensures the migrations table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure migrations table: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

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
	_, err = s.db.ExecContext(ctx, `INSERT INTO migrations (`+insertColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.Key, rec.From, rec.To, string(rec.Status), rec.Error, rec.Steps,
		rec.BeforeETag, rec.AfterETag, changes, nullTime(rec.StartedAt), nullTime(rec.FinishedAt))
	if err != nil {
		return core.Record{}, fmt.Errorf("insert migration %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (s *Store) History(ctx context.Context, key string) ([]core.Record, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM migrations WHERE doc_key = $1 ORDER BY seq`, key)
}

func (s *Store) Latest(ctx context.Context, key string) (core.Record, bool, error) {
	recs, err := s.query(ctx, `SELECT `+selectColumns+` FROM migrations WHERE doc_key = $1 ORDER BY seq DESC LIMIT 1`, key)
	if err != nil || len(recs) == 0 {
		return core.Record{}, false, err
	}
	return recs[0], true, nil
}

func (s *Store) query(ctx context.Context, q, key string) ([]core.Record, error) {
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
			started, finished sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.From, &rec.To, &status, &rec.Error, &rec.Steps,
			&rec.BeforeETag, &rec.AfterETag, &changes, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		rec.Status = core.Status(status)
		if changes.Valid {
			rec.Changes = []byte(changes.String)
		}
		if started.Valid {
			rec.StartedAt = started.Time.UTC()
		}
		if finished.Valid {
			rec.FinishedAt = finished.Time.UTC()
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
