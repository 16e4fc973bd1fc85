package migrate

import (
	"fmt"

	"labdoc/pkg/document"
)

// DefaultTagPath is where current documents keep their version.
var DefaultTagPath = document.MustParsePath("/metadata/schema_version")

// Tag locates the version tag inside a document. Path is the canonical
// location and must never move between schema versions. Legacy lists older
// locations that are read when Path is absent and cleared on the next write.
type Tag struct {
	Path   document.Path
	Legacy []document.Path
}

// DefaultTag returns a Tag at DefaultTagPath with no legacy locations.
func DefaultTag() Tag { return Tag{Path: DefaultTagPath} }

// Get returns the version recorded in doc. ok is false when no location holds
// a tag, which marks a legacy document. A tag that is present but not a valid
// version string is reported as a NoPathError. A location blocked by data of
// the wrong shape is skipped; it is reported only when no other location holds
// a tag.
func (t Tag) Get(doc document.Document) (Version, bool, error) {
	var blocked error
	for _, loc := range t.locations() {
		raw, ok, err := document.Get(doc, loc)
		if err != nil {
			if blocked == nil {
				blocked = &NoPathError{Raw: loc.String(), Reason: fmt.Sprintf("version tag location unreadable: %v", err)}
			}
			continue
		}
		if !ok || raw == nil {
			continue
		}
		s, isString := raw.(string)
		if !isString {
			return "", false, &NoPathError{Raw: raw, Reason: "version tag is not a string"}
		}
		v, err := ParseVersion(s)
		if err != nil {
			return "", false, &NoPathError{Raw: s, Reason: err.Error()}
		}
		return v, true, nil
	}
	if blocked != nil {
		return "", false, blocked
	}
	return "", false, nil
}

// Set writes v at the canonical location. A legacy tag is cleared first: when
// the canonical parent does not exist yet the whole legacy parent container is
// moved there, so sibling metadata travels with the tag; otherwise only the
// legacy tag is dropped.
func (t Tag) Set(doc document.Document, v Version) error {
	for _, legacy := range t.Legacy {
		if err := t.relocate(doc, legacy); err != nil {
			return fmt.Errorf("relocate legacy version tag %s: %w", legacy, err)
		}
	}
	if err := document.Set(doc, t.Path, string(v)); err != nil {
		return fmt.Errorf("write version tag %s: %w", t.Path, err)
	}
	return nil
}

func (t Tag) relocate(doc document.Document, legacy document.Path) error {
	if legacy.Equal(t.Path) {
		return nil
	}
	ok, err := document.Has(doc, legacy)
	if err != nil || !ok {
		return err
	}
	from, to := legacy.Parent(), t.Path.Parent()
	if !from.IsRoot() && !from.Equal(to) && !to.HasPrefix(from) {
		exists, err := document.Has(doc, to)
		if err != nil {
			return err
		}
		if !exists {
			group, _, _ := document.Get(doc, from)
			if _, err := document.Delete(doc, from); err != nil {
				return err
			}
			return document.Set(doc, to, group)
		}
	}
	if _, err := document.Delete(doc, legacy); err != nil {
		return err
	}
	if from.IsRoot() {
		return nil
	}
	if group, ok, _ := document.Get(doc, from); ok {
		if m, isMap := group.(map[string]any); isMap && len(m) == 0 {
			_, err := document.Delete(doc, from)
			return err
		}
	}
	return nil
}

func (t Tag) locations() []document.Path {
	out := make([]document.Path, 0, 1+len(t.Legacy))
	out = append(out, t.Path)
	return append(out, t.Legacy...)
}
