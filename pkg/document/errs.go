package document

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath reports a path string that cannot be parsed or a path that
	// cannot be used for the requested access (for example writing the root).
	ErrInvalidPath = errors.New("invalid path")
	// ErrPathConflict reports that a path runs through a value of the wrong
	// shape: a scalar where a container is required, or a non-numeric segment
	// against a sequence.
	ErrPathConflict = errors.New("path conflict")
	// ErrNotMapping reports decoded input whose root is not a mapping.
	ErrNotMapping = errors.New("document root is not a mapping")
)

// ConflictError describes where a path failed to resolve against the shape of
// a document. It matches ErrPathConflict with errors.Is.
type ConflictError struct {
	Path    Path
	Segment int
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("path conflict at %s segment %d: %s", e.Path, e.Segment, e.Reason)
}

// Is reports whether target is ErrPathConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrPathConflict }

func conflict(p Path, segment int, format string, args ...any) error {
	return &ConflictError{Path: p, Segment: segment, Reason: fmt.Sprintf(format, args...)}
}
