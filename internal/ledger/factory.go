package ledger

import (
	"context"
	"fmt"
	"os"

	"labdoc/internal/infra/persistence/memory"
	"labdoc/internal/infra/persistence/postgres"
	"labdoc/internal/infra/persistence/sqlite"
)

// Open selects a Ledger implementation using environment variables.
//
//	LABDOC_LEDGER_DRIVER: memory|sqlite|postgres (default sqlite)
//	LABDOC_SQLITE_PATH: database file when driver=sqlite (default ./labdoc.db)
//	LABDOC_POSTGRES_DSN: connection string when driver=postgres
func Open(ctx context.Context) (Ledger, error) {
	driver := os.Getenv("LABDOC_LEDGER_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(os.Getenv("LABDOC_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgres(ctx, os.Getenv("LABDOC_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown ledger driver %s", driver)
	}
}

// NewMemory returns an in-memory Ledger.
func NewMemory() Ledger { return memory.New() }

// NewSQLite opens a SQLite Ledger at path.
func NewSQLite(path string) (Ledger, error) {
	if path == "" {
		path = "./labdoc.db"
	}
	return sqlite.New(path)
}

// NewPostgres opens a Postgres Ledger.
func NewPostgres(ctx context.Context, dsn string) (Ledger, error) {
	return postgres.New(ctx, dsn)
}
