package migrate

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a canonical MAJOR.MINOR.PATCH string without a "v" prefix.
type Version string

// ParseVersion validates s and returns its canonical form. A leading "v" is
// accepted and dropped; pre-release and build suffixes are rejected.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	v := "v" + strings.TrimPrefix(s, "v")
	if !semver.IsValid(v) || semver.Canonical(v) != v || semver.Prerelease(v) != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return Version(v[1:]), nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string { return string(v) }

// IsZero reports whether v is unset.
func (v Version) IsZero() bool { return v == "" }

// Compare returns -1, 0 or +1 by semantic version precedence.
func (v Version) Compare(w Version) int {
	return semver.Compare("v"+string(v), "v"+string(w))
}
