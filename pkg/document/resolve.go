package document

import "fmt"

// Document is one decoded record. The root is always a mapping.
type Document map[string]any

// Get returns the value at p. A path that runs off the data, including through
// a null, reports ok == false with no error. Descending into a present scalar
// or using a non-numeric segment on a sequence is a conflict.
func Get(doc Document, p Path) (any, bool, error) {
	var cur any = map[string]any(doc)
	for i, seg := range p {
		switch c := normalize(cur).(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false, nil
			}
			cur = v
		case []any:
			idx, ok := parseIndex(seg)
			if !ok {
				return nil, false, conflict(p, i, "sequence index %q is not a non-negative integer", seg)
			}
			if idx >= len(c) {
				return nil, false, nil
			}
			cur = c[idx]
		case nil:
			return nil, false, nil
		default:
			return nil, false, conflict(p, i, "cannot descend into %s", kindOf(c))
		}
	}
	return cur, true, nil
}

// Has reports whether a value, possibly null, is present at p.
func Has(doc Document, p Path) (bool, error) {
	_, ok, err := Get(doc, p)
	return ok, err
}

// Set writes v at p, creating missing intermediate containers. A missing
// intermediate becomes a sequence when the next segment is an index and a
// mapping otherwise; a null intermediate is replaced the same way. Writing past
// the end of a sequence pads it with nulls.
func Set(doc Document, p Path, v any) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidPath)
	}
	if p.IsRoot() {
		return fmt.Errorf("%w: cannot replace the document root", ErrInvalidPath)
	}
	_, err := setIn(map[string]any(doc), p, 0, v)
	return err
}

func setIn(node any, p Path, i int, v any) (any, error) {
	seg := p[i]
	last := i == len(p)-1
	switch c := normalize(node).(type) {
	case map[string]any:
		if last {
			c[seg] = v
			return c, nil
		}
		child := c[seg]
		if child == nil {
			child = newContainer(p[i+1])
		}
		nc, err := setIn(child, p, i+1, v)
		if err != nil {
			return nil, err
		}
		c[seg] = nc
		return c, nil
	case []any:
		idx, ok := parseIndex(seg)
		if !ok {
			return nil, conflict(p, i, "sequence index %q is not a non-negative integer", seg)
		}
		if idx > len(c)+maxIndex {
			return nil, conflict(p, i, "sequence index %d is too far past the end (%d)", idx, len(c))
		}
		for len(c) <= idx {
			c = append(c, nil)
		}
		if last {
			c[idx] = v
			return c, nil
		}
		child := c[idx]
		if child == nil {
			child = newContainer(p[i+1])
		}
		nc, err := setIn(child, p, i+1, v)
		if err != nil {
			return nil, err
		}
		c[idx] = nc
		return c, nil
	default:
		return nil, conflict(p, i, "cannot descend into %s", kindOf(c))
	}
}

// Delete removes the value at p. It reports whether something was removed;
// a missing path is not an error. Removing a sequence element shifts the
// following elements down.
func Delete(doc Document, p Path) (bool, error) {
	if p.IsRoot() {
		return false, fmt.Errorf("%w: cannot delete the document root", ErrInvalidPath)
	}
	parent, ok, err := Get(doc, p.Parent())
	if err != nil || !ok {
		return false, err
	}
	seg := p.Last()
	switch c := normalize(parent).(type) {
	case map[string]any:
		if _, ok := c[seg]; !ok {
			return false, nil
		}
		delete(c, seg)
		return true, nil
	case []any:
		idx, ok := parseIndex(seg)
		if !ok {
			return false, conflict(p, len(p)-1, "sequence index %q is not a non-negative integer", seg)
		}
		if idx >= len(c) {
			return false, nil
		}
		out := make([]any, 0, len(c)-1)
		out = append(out, c[:idx]...)
		out = append(out, c[idx+1:]...)
		return true, Set(doc, p.Parent(), out)
	case nil:
		return false, nil
	default:
		return false, conflict(p, len(p)-1, "cannot descend into %s", kindOf(c))
	}
}

func newContainer(next string) any {
	if _, ok := parseIndex(next); ok {
		return []any{}
	}
	return map[string]any{}
}

// normalize folds the named Document type into its underlying map so type
// switches only need one mapping case.
func normalize(v any) any {
	if d, ok := v.(Document); ok {
		return map[string]any(d)
	}
	return v
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any, Document:
		return "mapping"
	case []any:
		return "sequence"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
