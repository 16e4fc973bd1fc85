package document

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Clone returns a deep copy of doc.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return Document(CloneValue(map[string]any(doc)).(map[string]any))
}

// CloneValue deep-copies mappings and sequences; scalars are returned as is.
func CloneValue(v any) any {
	switch c := normalize(v).(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return c
	}
}

// Equal reports whether a and b hold the same data. Numbers compare by value
// regardless of their Go representation, so 5, uint64(5) and 5.0 are equal.
func Equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Walk calls fn for every leaf of doc in key order. Scalars, nulls and empty
// containers are leaves. Returning an error from fn stops the walk.
func Walk(doc Document, fn func(Path, any) error) error {
	return walk(Path{}, map[string]any(doc), fn)
}

func walk(p Path, v any, fn func(Path, any) error) error {
	switch c := normalize(v).(type) {
	case map[string]any:
		if len(c) == 0 && len(p) > 0 {
			return fn(p, c)
		}
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := walk(p.Child(k), c[k], fn); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if len(c) == 0 {
			return fn(p, c)
		}
		for i, e := range c {
			if err := walk(p.Child(strconv.Itoa(i)), e, fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return fn(p, c)
	}
}
