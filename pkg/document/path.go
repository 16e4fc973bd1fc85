package document

import (
	"fmt"
	"strconv"
	"strings"
)

// maxIndex bounds sequence indexes accepted by Set so that a malformed path
// cannot grow a sequence without limit.
const maxIndex = 1 << 16

// Path is a parsed location inside a Document. The empty Path is the root.
type Path []string

// ParsePath parses a slash-delimited path. A leading slash is optional, the
// empty string and "/" denote the root, and segments use the JSON Pointer
// escapes ~0 for "~" and ~1 for "/".
func ParsePath(s string) (Path, error) {
	if s == "" || s == "/" {
		return Path{}, nil
	}
	s = strings.TrimPrefix(s, "/")
	raw := strings.Split(s, "/")
	p := make(Path, 0, len(raw))
	for i, seg := range raw {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment at %d", ErrInvalidPath, s, i)
		}
		un, err := unescape(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPath, s, err)
		}
		p = append(p, un)
	}
	return p, nil
}

// MustParsePath is like ParsePath but panics on error. It is meant for
// package-level patch tables and tests.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func unescape(seg string) (string, error) {
	if !strings.Contains(seg, "~") {
		return seg, nil
	}
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if c != '~' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(seg) {
			return "", fmt.Errorf("dangling escape in %q", seg)
		}
		switch seg[i+1] {
		case '0':
			b.WriteByte('~')
		case '1':
			b.WriteByte('/')
		default:
			return "", fmt.Errorf("bad escape ~%c in %q", seg[i+1], seg)
		}
		i++
	}
	return b.String(), nil
}

var escaper = strings.NewReplacer("~", "~0", "/", "~1")

// String returns the canonical slash-delimited form; the root is "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(escaper.Replace(seg))
	}
	return b.String()
}

// IsRoot reports whether p addresses the document root.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Parent returns the path of the containing node. The parent of the root is
// the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[:len(p)-1:len(p)-1]
}

// Last returns the final segment, or "" for the root.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Child returns a new path with seg appended. p is not modified.
func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Equal reports whether p and q address the same location.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is p itself or one of its ancestors.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	return p[:len(q)].Equal(q)
}

// parseIndex accepts only plain non-negative decimal integers.
func parseIndex(seg string) (int, bool) {
	if seg == "" || len(seg) > 1 && seg[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}
