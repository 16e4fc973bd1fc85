package migrate

import (
	"errors"
	"fmt"
	"strings"

	"labdoc/pkg/document"
)

var (
	// ErrPathConflict is document.ErrPathConflict, re-exported so callers can
	// classify every migration failure from this package.
	ErrPathConflict = document.ErrPathConflict
	// ErrNoMigrationPath reports a version tag that is unknown, unsupported
	// or unreadable.
	ErrNoMigrationPath = errors.New("no migration path")
	// ErrMigrationCycle reports a patch list that does not terminate.
	ErrMigrationCycle = errors.New("migration cycle detected")
	// ErrInvalidChain reports a patch list rejected at construction time.
	ErrInvalidChain = errors.New("invalid patch chain")
	// ErrInvalidOperation reports an operation missing required parameters.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidVersion reports a string that is not MAJOR.MINOR.PATCH.
	ErrInvalidVersion = errors.New("invalid version")
)

// NoPathError is returned when no patch starts at the document's version.
type NoPathError struct {
	Version Version // parsed version, empty when the tag could not be parsed
	Raw     any     // raw tag value when it could not be parsed
	Current Version
	Reason  string
}

func (e *NoPathError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no migration path for version tag %v: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("no migration path from version %s to %s", e.Version, e.Current)
}

// Is reports whether target is ErrNoMigrationPath.
func (e *NoPathError) Is(target error) bool { return target == ErrNoMigrationPath }

// CycleError is returned when the number of applied patches exceeds the
// length of the chain.
type CycleError struct {
	Limit int
	Trail []Version
}

func (e *CycleError) Error() string {
	trail := make([]string, len(e.Trail))
	for i, v := range e.Trail {
		trail[i] = string(v)
	}
	return fmt.Sprintf("migration cycle detected after %d patches: %s", e.Limit, strings.Join(trail, " -> "))
}

// Is reports whether target is ErrMigrationCycle.
func (e *CycleError) Is(target error) bool { return target == ErrMigrationCycle }

// OperationError locates the failing operation inside a patch.
type OperationError struct {
	Index int
	Op    Operation
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// PatchError locates the failing patch inside a migration.
type PatchError struct {
	From, To Version
	Err      error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// Retryable reports whether running the same migration again could succeed.
// Every failure produced by this package is deterministic, so only errors
// from elsewhere (for example a storage layer wrapping a migration) are
// considered retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPathConflict),
		errors.Is(err, ErrNoMigrationPath),
		errors.Is(err, ErrMigrationCycle),
		errors.Is(err, ErrInvalidChain),
		errors.Is(err, ErrInvalidOperation),
		errors.Is(err, document.ErrInvalidPath):
		return false
	}
	return true
}
