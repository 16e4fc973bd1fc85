package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func runContract(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	want := []Record{
		{Key: "samples/s1.json", From: "0.0.1", To: "0.2.0", Status: StatusMigrated, Steps: 4, BeforeETag: "a", AfterETag: "b", Changes: []byte(`{"label":null}`), StartedAt: base, FinishedAt: base.Add(time.Second)},
		{Key: "samples/s1.json", From: "0.2.0", To: "0.2.0", Status: StatusCurrent, BeforeETag: "b", StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute)},
	}
	for i := range want {
		rec, err := l.Append(ctx, want[i])
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		want[i].ID = rec.ID
	}
	if _, err := l.Append(ctx, Record{Key: "samples/s2.json", Status: StatusFailed, Error: "no migration path"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := l.History(ctx, "samples/s1.json")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	latest, ok, err := l.Latest(ctx, "samples/s2.json")
	if err != nil || !ok || latest.Status != StatusFailed {
		t.Fatalf("Latest = %+v, %v, %v", latest, ok, err)
	}
	if hist, err := l.History(ctx, "absent"); err != nil || len(hist) != 0 {
		t.Fatalf("History(absent) = %v, %v", hist, err)
	}
}

func TestLedgerContract(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		runContract(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		l, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
		if err != nil {
			t.Skipf("sqlite unavailable: %v", err)
		}
		defer func() { _ = l.Close() }()
		runContract(t, l)
	})
}

func TestOpenFromEnv(t *testing.T) {
	t.Setenv("LABDOC_LEDGER_DRIVER", "memory")
	l, err := Open(context.Background())
	if err != nil || l.Driver() != DriverMemory {
		t.Fatalf("Open(memory) = %v, %v", l, err)
	}

	t.Setenv("LABDOC_LEDGER_DRIVER", "")
	t.Setenv("LABDOC_SQLITE_PATH", filepath.Join(t.TempDir(), "env.db"))
	l, err = Open(context.Background())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = l.Close() }()
	if l.Driver() != DriverSQLite {
		t.Fatalf("default driver = %s", l.Driver())
	}

	t.Setenv("LABDOC_LEDGER_DRIVER", "mongo")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
