package migrate

import (
	"fmt"
	"sort"

	"labdoc/pkg/document"
)

// Kind names an operation type as it appears in patch files.
type Kind string

const (
	KindRenameKey Kind = "rename_key"
	KindMove      Kind = "move"
	KindMap       Kind = "map"
	KindRemove    Kind = "remove"
	KindSet       Kind = "set"
)

// Operation is one declarative edit. The set of implementations is closed:
// RenameKey, Move, MapValues, Remove and Set.
type Operation interface {
	Kind() Kind
	// Source is the path the operation reads or writes first.
	Source() document.Path
	String() string
	validate() error
	isOperation()
}

// RenameKey renames the final segment of Path to Key, keeping the parent.
type RenameKey struct {
	Path document.Path
	Key  string
}

// Move relocates the value at Path to To, possibly under another parent.
type Move struct {
	Path document.Path
	To   document.Path
}

// Mapping is one literal translation in a MapValues table.
type Mapping struct {
	From any
	To   any
}

// MapValues replaces the value at Path with the To of the first Mapping whose
// From equals it. Unmatched values are left alone.
type MapValues struct {
	Path  document.Path
	Table []Mapping
}

// Remove deletes the value at Path.
type Remove struct {
	Path document.Path
}

// Set writes Value at Path whether or not a value is already there.
type Set struct {
	Path  document.Path
	Value any
}

// NewMapValues builds a MapValues from a string-keyed table. Entries are
// ordered by key so the result is deterministic.
func NewMapValues(path document.Path, values map[string]any) MapValues {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	table := make([]Mapping, 0, len(keys))
	for _, k := range keys {
		table = append(table, Mapping{From: k, To: values[k]})
	}
	return MapValues{Path: path, Table: table}
}

func (RenameKey) Kind() Kind { return KindRenameKey }
func (Move) Kind() Kind      { return KindMove }
func (MapValues) Kind() Kind { return KindMap }
func (Remove) Kind() Kind    { return KindRemove }
func (Set) Kind() Kind       { return KindSet }

func (o RenameKey) Source() document.Path { return o.Path }
func (o Move) Source() document.Path      { return o.Path }
func (o MapValues) Source() document.Path { return o.Path }
func (o Remove) Source() document.Path    { return o.Path }
func (o Set) Source() document.Path       { return o.Path }

func (o RenameKey) String() string { return fmt.Sprintf("rename_key %s -> %s", o.Path, o.Key) }
func (o Move) String() string      { return fmt.Sprintf("move %s -> %s", o.Path, o.To) }
func (o MapValues) String() string { return fmt.Sprintf("map %s (%d values)", o.Path, len(o.Table)) }
func (o Remove) String() string    { return fmt.Sprintf("remove %s", o.Path) }
func (o Set) String() string       { return fmt.Sprintf("set %s -> %v", o.Path, o.Value) }

func (RenameKey) isOperation() {}
func (Move) isOperation()      {}
func (MapValues) isOperation() {}
func (Remove) isOperation()    {}
func (Set) isOperation()       {}

func (o RenameKey) validate() error {
	if o.Path.IsRoot() {
		return fmt.Errorf("%w: rename_key needs a non-root path", ErrInvalidOperation)
	}
	if o.Key == "" {
		return fmt.Errorf("%w: rename_key %s needs a key", ErrInvalidOperation, o.Path)
	}
	return nil
}

func (o Move) validate() error {
	if o.Path.IsRoot() || o.To.IsRoot() {
		return fmt.Errorf("%w: move needs non-root source and destination", ErrInvalidOperation)
	}
	return nil
}

func (o MapValues) validate() error {
	if o.Path.IsRoot() {
		return fmt.Errorf("%w: map needs a non-root path", ErrInvalidOperation)
	}
	if len(o.Table) == 0 {
		return fmt.Errorf("%w: map %s has an empty table", ErrInvalidOperation, o.Path)
	}
	for i, m := range o.Table {
		switch m.From.(type) {
		case map[string]any, []any, document.Document:
			return fmt.Errorf("%w: map %s entry %d matches a container; only literals are allowed", ErrInvalidOperation, o.Path, i)
		}
	}
	return nil
}

func (o Remove) validate() error {
	if o.Path.IsRoot() {
		return fmt.Errorf("%w: remove needs a non-root path", ErrInvalidOperation)
	}
	return nil
}

func (o Set) validate() error {
	if o.Path.IsRoot() {
		return fmt.Errorf("%w: set needs a non-root path", ErrInvalidOperation)
	}
	return nil
}

// Validate checks that op carries the parameters its kind requires.
func Validate(op Operation) error {
	if op == nil {
		return fmt.Errorf("%w: nil operation", ErrInvalidOperation)
	}
	return op.validate()
}
