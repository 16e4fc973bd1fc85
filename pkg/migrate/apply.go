package migrate

import (
	"fmt"

	"labdoc/pkg/document"
)

// Apply performs op on doc and returns doc for chaining. Absent sources are
// no-ops for every kind; only shape conflicts fail. On failure doc may be
// partially modified.
func Apply(doc document.Document, op Operation) (document.Document, error) {
	var err error
	switch o := op.(type) {
	case RenameKey:
		err = applyRename(doc, o)
	case Move:
		err = applyMove(doc, o.Path, o.To)
	case MapValues:
		err = applyMap(doc, o)
	case Remove:
		_, err = document.Delete(doc, o.Path)
	case Set:
		err = document.Set(doc, o.Path, document.CloneValue(o.Value))
	case nil:
		err = fmt.Errorf("%w: nil operation", ErrInvalidOperation)
	default:
		err = fmt.Errorf("%w: unsupported operation %T", ErrInvalidOperation, op)
	}
	return doc, err
}

// ApplyAll applies ops in order and stops at the first failure, which is
// returned as an *OperationError.
func ApplyAll(doc document.Document, ops []Operation) (document.Document, error) {
	for i, op := range ops {
		if _, err := Apply(doc, op); err != nil {
			return doc, &OperationError{Index: i, Op: op, Err: err}
		}
	}
	return doc, nil
}

func applyRename(doc document.Document, o RenameKey) error {
	if err := o.validate(); err != nil {
		return err
	}
	return applyMove(doc, o.Path, o.Path.Parent().Child(o.Key))
}

func applyMove(doc document.Document, from, to document.Path) error {
	if from.IsRoot() || to.IsRoot() {
		return fmt.Errorf("%w: move between %s and %s", ErrInvalidOperation, from, to)
	}
	v, ok, err := document.Get(doc, from)
	if err != nil || !ok {
		return err
	}
	if from.Equal(to) {
		return nil
	}
	if _, err := document.Delete(doc, from); err != nil {
		return err
	}
	return document.Set(doc, to, v)
}

func applyMap(doc document.Document, o MapValues) error {
	v, ok, err := document.Get(doc, o.Path)
	if err != nil || !ok {
		return err
	}
	for _, m := range o.Table {
		if document.Equal(v, m.From) {
			return document.Set(doc, o.Path, document.CloneValue(m.To))
		}
	}
	return nil
}
