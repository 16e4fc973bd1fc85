// Package core defines the migration ledger contract shared by the ledger
// facade and its backends.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Driver identifies a ledger backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Status is the result of one migration attempt.
type Status string

const (
	// StatusMigrated means at least one patch was applied and written back.
	StatusMigrated Status = "migrated"
	// StatusCurrent means the document was already at the current version.
	StatusCurrent Status = "current"
	// StatusFailed means the attempt stopped with an error and nothing was written.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusMigrated, StatusCurrent, StatusFailed:
		return true
	}
	return false
}

// Record is one ledger entry. Changes holds the RFC 7386 merge patch between
// the stored and the migrated document, empty when nothing changed.
type Record struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	From       string          `json:"from,omitempty"`
	To         string          `json:"to,omitempty"`
	Status     Status          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Steps      int             `json:"steps"`
	BeforeETag string          `json:"before_etag,omitempty"`
	AfterETag  string          `json:"after_etag,omitempty"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Ledger stores migration records per document key.
type Ledger interface {
	// Append stores rec, assigning an ID when it has none.
	Append(ctx context.Context, rec Record) (Record, error)
	// History returns every record for key, oldest first.
	History(ctx context.Context, key string) ([]Record, error)
	// Latest returns the newest record for key.
	Latest(ctx context.Context, key string) (Record, bool, error)
	Driver() Driver
	Close() error
}

// ErrInvalidRecord matches records a ledger refuses to store.
var ErrInvalidRecord = errors.New("invalid ledger record")

// Prepare validates rec and fills in a fresh ID when it is missing.
func Prepare(rec Record) (Record, error) {
	if rec.Key == "" {
		return rec, fmt.Errorf("%w: empty key", ErrInvalidRecord)
	}
	if !rec.Status.Valid() {
		return rec, fmt.Errorf("%w: status %q", ErrInvalidRecord, rec.Status)
	}
	if len(rec.Changes) > 0 && !json.Valid(rec.Changes) {
		return rec, fmt.Errorf("%w: changes are not JSON", ErrInvalidRecord)
	}
	if rec.ID == "" {
		rec.ID = NewID(rec.StartedAt)
	}
	return rec, nil
}

// NewID returns a ULID whose time component is t, or now when t is zero.
func NewID(t time.Time) string {
	if t.IsZero() {
		return ulid.Make().String()
	}
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
