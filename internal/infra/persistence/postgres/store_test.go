package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"labdoc/internal/infra/persistence/postgres/testutil"
	"labdoc/internal/ledger/core"
)

func stubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" || dsn != DefaultDSN {
			t.Errorf("unexpected open(%q, %q)", driver, dsn)
		}
		return db, nil
	})
	defer restore()
	store, err := New(context.Background(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, conn
}

func TestNewEnsuresSchema(t *testing.T) {
	store, conn := stubStore(t)
	defer func() { _ = store.Close() }()
	if len(conn.Execs) != 2 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS migrations") {
		t.Fatalf("unexpected DDL %v", conn.Execs)
	}
	if !strings.Contains(conn.Execs[0], "changes JSONB") {
		t.Fatalf("changes should be stored as JSONB: %s", conn.Execs[0])
	}
	if store.Driver() != core.DriverPostgres {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := stubStore(t)
	started := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	first, err := store.Append(ctx, core.Record{
		Key: "samples/a.yaml", From: "0.0.3", To: "0.2.0", Status: core.StatusMigrated, Steps: 2,
		Changes: json.RawMessage(`{"metadata":{"schema_version":"0.2.0"}}`), StartedAt: started, FinishedAt: started,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, core.Record{Key: "samples/a.yaml", Status: core.StatusCurrent}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, core.Record{Key: "other", Status: core.StatusFailed}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	hist, err := store.History(ctx, "samples/a.yaml")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].ID != first.ID || hist[0].Steps != 2 || !hist[0].StartedAt.Equal(started) {
		t.Fatalf("unexpected history %+v", hist)
	}
	if string(hist[0].Changes) != `{"metadata":{"schema_version":"0.2.0"}}` || hist[1].Changes != nil {
		t.Fatalf("changes did not round trip: %+v", hist)
	}
	if !hist[1].StartedAt.IsZero() {
		t.Fatalf("zero time should be stored as NULL, got %v", hist[1].StartedAt)
	}

	latest, ok, err := store.Latest(ctx, "samples/a.yaml")
	if err != nil || !ok || latest.Status != core.StatusCurrent {
		t.Fatalf("Latest = %+v, %v, %v", latest, ok, err)
	}
	if _, ok, err := store.Latest(ctx, "nope"); ok || err != nil {
		t.Fatalf("Latest(nope) = %v, %v", ok, err)
	}
	if _, err := store.Append(ctx, core.Record{Key: "x"}); !errors.Is(err, core.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestNewErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("dial") })
	if _, err := New(context.Background(), "postgres://db/x"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := New(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}

	db, conn = testutil.NewStubDB()
	conn.FailExec = true
	restore2 := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore2()
	if _, err := New(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ensure migrations table") {
		t.Fatalf("expected DDL error, got %v", err)
	}
}

func TestQueryRowsError(t *testing.T) {
	store, conn := stubStore(t)
	if _, err := store.Append(context.Background(), core.Record{Key: "k", Status: core.StatusCurrent}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	conn.RowsErr = errors.New("network reset")
	if _, err := store.History(context.Background(), "k"); err == nil || !strings.Contains(err.Error(), "iterate migrations") {
		t.Fatalf("expected iterate error, got %v", err)
	}
}
