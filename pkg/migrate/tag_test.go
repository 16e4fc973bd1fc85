package migrate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"labdoc/pkg/document"
)

func legacyTag() Tag {
	return Tag{
		Path:   DefaultTagPath,
		Legacy: []document.Path{document.MustParsePath("/Metadata/schema_version")},
	}
}

func TestTagGet(t *testing.T) {
	tag := legacyTag()
	tests := []struct {
		name   string
		doc    document.Document
		want   Version
		wantOK bool
	}{
		{"canonical", document.Document{"metadata": map[string]any{"schema_version": "0.1.0"}}, "0.1.0", true},
		{"legacy", document.Document{"Metadata": map[string]any{"schema_version": "0.0.2"}}, "0.0.2", true},
		{"canonical wins", document.Document{
			"metadata": map[string]any{"schema_version": "0.1.0"},
			"Metadata": map[string]any{"schema_version": "0.0.2"},
		}, "0.1.0", true},
		{"untagged", document.Document{"sample": map[string]any{}}, "", false},
		{"null tag", document.Document{"metadata": map[string]any{"schema_version": nil}}, "", false},
		{"null parent", document.Document{"metadata": nil}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := tag.Get(tc.doc)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("Get = %q,%v want %q,%v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestTagGetRejectsCorruptTags(t *testing.T) {
	tag := DefaultTag()
	for _, raw := range []any{42, "banana", "1.2", map[string]any{"v": "1.0.0"}} {
		doc := document.Document{"metadata": map[string]any{"schema_version": raw}}
		_, _, err := tag.Get(doc)
		if !errors.Is(err, ErrNoMigrationPath) {
			t.Fatalf("tag %v: expected ErrNoMigrationPath, got %v", raw, err)
		}
	}
	doc := document.Document{"metadata": "flat"}
	if _, _, err := tag.Get(doc); !errors.Is(err, ErrNoMigrationPath) {
		t.Fatalf("unreadable location: expected ErrNoMigrationPath, got %v", err)
	}
}

func TestTagGetFallsBackPastBlockedCanonical(t *testing.T) {
	doc := document.Document{
		"metadata": "oops",
		"Metadata": map[string]any{"schema_version": "0.0.2"},
	}
	v, ok, err := legacyTag().Get(doc)
	if err != nil || !ok || v != "0.0.2" {
		t.Fatalf("Get = %q,%v,%v want 0.0.2 from the legacy location", v, ok, err)
	}

	// the canonical location still cannot be written, which is a conflict
	if err := legacyTag().Set(doc, "0.0.3"); !errors.Is(err, document.ErrPathConflict) {
		t.Fatalf("Set: expected ErrPathConflict, got %v", err)
	}

	if _, _, err := legacyTag().Get(document.Document{"metadata": "oops"}); !errors.Is(err, ErrNoMigrationPath) {
		t.Fatalf("blocked canonical with no legacy tag: expected ErrNoMigrationPath, got %v", err)
	}
}

func TestTagSetRelocatesLegacyGroup(t *testing.T) {
	doc := document.Document{
		"Metadata": map[string]any{"schema_version": "0.0.2", "operator": "kb"},
	}
	if err := legacyTag().Set(doc, "0.0.3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := map[string]any{
		"metadata": map[string]any{"schema_version": "0.0.3", "operator": "kb"},
	}
	if diff := cmp.Diff(want, map[string]any(doc)); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestTagSetDropsLegacyWhenCanonicalParentExists(t *testing.T) {
	doc := document.Document{
		"Metadata": map[string]any{"schema_version": "0.0.2"},
		"metadata": map[string]any{"operator": "kb"},
	}
	if err := legacyTag().Set(doc, "0.1.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := map[string]any{
		"metadata": map[string]any{"schema_version": "0.1.0", "operator": "kb"},
	}
	if diff := cmp.Diff(want, map[string]any(doc)); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}

	doc = document.Document{
		"Metadata": map[string]any{"schema_version": "0.0.2", "site": "b"},
		"metadata": map[string]any{},
	}
	if err := legacyTag().Set(doc, "0.1.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	want = map[string]any{
		"Metadata": map[string]any{"site": "b"},
		"metadata": map[string]any{"schema_version": "0.1.0"},
	}
	if diff := cmp.Diff(want, map[string]any(doc)); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestTagSetCreatesCanonicalLocation(t *testing.T) {
	doc := document.Document{"sample": map[string]any{"label": "X"}}
	if err := DefaultTag().Set(doc, "0.1.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := DefaultTag().Get(doc)
	if err != nil || !ok || v != "0.1.0" {
		t.Fatalf("Get after Set = %q,%v,%v", v, ok, err)
	}
	bad := document.Document{"metadata": "flat"}
	if err := DefaultTag().Set(bad, "0.1.0"); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("expected conflict writing under a scalar, got %v", err)
	}
}
