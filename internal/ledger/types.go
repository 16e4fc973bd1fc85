// Package ledger records the outcome of every stored-document migration. It
// re-exports the contract from ledger/core and selects a backend.
package ledger

import "labdoc/internal/ledger/core"

type (
	// Driver identifies a ledger backend.
	Driver = core.Driver
	// Status is the result of one migration attempt.
	Status = core.Status
	// Record is one ledger entry.
	Record = core.Record
	// Ledger is the interface implemented by every backend.
	Ledger = core.Ledger
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres

	StatusMigrated = core.StatusMigrated
	StatusCurrent  = core.StatusCurrent
	StatusFailed   = core.StatusFailed
)

// ErrInvalidRecord matches records a ledger refuses to store.
var ErrInvalidRecord = core.ErrInvalidRecord
