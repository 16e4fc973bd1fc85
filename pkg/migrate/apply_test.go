package migrate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"labdoc/pkg/document"
)

var mustPath = document.MustParsePath

func TestApplyOperations(t *testing.T) {
	tests := []struct {
		name string
		doc  document.Document
		op   Operation
		want map[string]any
	}{
		{
			name: "rename keeps parent",
			doc:  document.Document{"Sample": map[string]any{"Label": "X"}},
			op:   RenameKey{Path: mustPath("/Sample/Label"), Key: "label"},
			want: map[string]any{"Sample": map[string]any{"label": "X"}},
		},
		{
			name: "rename top level",
			doc:  document.Document{"Sample": map[string]any{"Label": "X"}},
			op:   RenameKey{Path: mustPath("/Sample"), Key: "sample"},
			want: map[string]any{"sample": map[string]any{"Label": "X"}},
		},
		{
			name: "rename absent is a no-op",
			doc:  document.Document{"sample": map[string]any{}},
			op:   RenameKey{Path: mustPath("/Sample"), Key: "sample"},
			want: map[string]any{"sample": map[string]any{}},
		},
		{
			name: "move across parents",
			doc:  document.Document{"sample": map[string]any{"tube": "5 mm"}},
			op:   Move{Path: mustPath("/sample/tube"), To: mustPath("/nmr_tube/diameter")},
			want: map[string]any{"sample": map[string]any{}, "nmr_tube": map[string]any{"diameter": "5 mm"}},
		},
		{
			name: "move into sequence",
			doc:  document.Document{"solvent": "D2O"},
			op:   Move{Path: mustPath("/solvent"), To: mustPath("/solvents/0")},
			want: map[string]any{"solvents": []any{"D2O"}},
		},
		{
			name: "move onto existing overwrites",
			doc:  document.Document{"a": 1, "b": 2},
			op:   Move{Path: mustPath("/a"), To: mustPath("/b")},
			want: map[string]any{"b": 1},
		},
		{
			name: "move onto itself",
			doc:  document.Document{"a": 1},
			op:   Move{Path: mustPath("/a"), To: mustPath("/a")},
			want: map[string]any{"a": 1},
		},
		{
			name: "move null value",
			doc:  document.Document{"a": nil},
			op:   Move{Path: mustPath("/a"), To: mustPath("/b")},
			want: map[string]any{"b": nil},
		},
		{
			name: "map matched",
			doc:  document.Document{"sample": map[string]any{"form": "Solid"}},
			op:   NewMapValues(mustPath("/sample/form"), map[string]any{"Solid": "solid", "Liquid": "liquid"}),
			want: map[string]any{"sample": map[string]any{"form": "solid"}},
		},
		{
			name: "map unmatched is left alone",
			doc:  document.Document{"sample": map[string]any{"form": "Gel"}},
			op:   NewMapValues(mustPath("/sample/form"), map[string]any{"Solid": "solid"}),
			want: map[string]any{"sample": map[string]any{"form": "Gel"}},
		},
		{
			name: "map numeric literal",
			doc:  document.Document{"temp": 25},
			op:   MapValues{Path: mustPath("/temp"), Table: []Mapping{{From: 25.0, To: "room"}}},
			want: map[string]any{"temp": "room"},
		},
		{
			name: "map first match wins",
			doc:  document.Document{"v": "a"},
			op:   MapValues{Path: mustPath("/v"), Table: []Mapping{{From: "a", To: "first"}, {From: "a", To: "second"}}},
			want: map[string]any{"v": "first"},
		},
		{
			name: "map absent",
			doc:  document.Document{},
			op:   NewMapValues(mustPath("/sample/form"), map[string]any{"Solid": "solid"}),
			want: map[string]any{},
		},
		{
			name: "remove",
			doc:  document.Document{"sample": map[string]any{"legacy": true, "label": "X"}},
			op:   Remove{Path: mustPath("/sample/legacy")},
			want: map[string]any{"sample": map[string]any{"label": "X"}},
		},
		{
			name: "remove absent",
			doc:  document.Document{"sample": map[string]any{"label": "X"}},
			op:   Remove{Path: mustPath("/sample/legacy/deep")},
			want: map[string]any{"sample": map[string]any{"label": "X"}},
		},
		{
			name: "remove sequence element",
			doc:  document.Document{"solvents": []any{"a", "b", "c"}},
			op:   Remove{Path: mustPath("/solvents/1")},
			want: map[string]any{"solvents": []any{"a", "c"}},
		},
		{
			name: "set creates parents",
			doc:  document.Document{},
			op:   Set{Path: mustPath("/sample/physical_form"), Value: ""},
			want: map[string]any{"sample": map[string]any{"physical_form": ""}},
		},
		{
			name: "set overwrites",
			doc:  document.Document{"sample": map[string]any{"physical_form": "solid"}},
			op:   Set{Path: mustPath("/sample/physical_form"), Value: ""},
			want: map[string]any{"sample": map[string]any{"physical_form": ""}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.doc, tc.op)
			if err != nil {
				t.Fatalf("Apply(%s): %v", tc.op, err)
			}
			if diff := cmp.Diff(tc.want, map[string]any(got)); diff != "" {
				t.Fatalf("Apply(%s) mismatch (-want +got):\n%s", tc.op, diff)
			}
		})
	}
}

func TestApplyConflicts(t *testing.T) {
	tests := []struct {
		name string
		doc  document.Document
		op   Operation
	}{
		{"set under scalar", document.Document{"sample": "flat"}, Set{Path: mustPath("/sample/label"), Value: "X"}},
		{"move through scalar", document.Document{"sample": "flat"}, Move{Path: mustPath("/sample/label"), To: mustPath("/label")}},
		{"move onto scalar parent", document.Document{"a": 1, "b": "flat"}, Move{Path: mustPath("/a"), To: mustPath("/b/c")}},
		{"remove through scalar", document.Document{"sample": 3}, Remove{Path: mustPath("/sample/x")}},
		{"map non-index on sequence", document.Document{"list": []any{1}}, NewMapValues(mustPath("/list/first"), map[string]any{"1": 2})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(tc.doc, tc.op)
			if !errors.Is(err, ErrPathConflict) {
				t.Fatalf("expected ErrPathConflict, got %v", err)
			}
			var ce *document.ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *document.ConflictError, got %T", err)
			}
		})
	}
}

func TestSetValueIsCopied(t *testing.T) {
	value := map[string]any{"unit": "mm"}
	op := Set{Path: mustPath("/tube"), Value: value}
	a, _ := Apply(document.Document{}, op)
	b, _ := Apply(document.Document{}, op)
	a["tube"].(map[string]any)["unit"] = "cm"
	if b["tube"].(map[string]any)["unit"] != "mm" || value["unit"] != "mm" {
		t.Fatalf("Set shares its value between documents")
	}
}

func TestApplyAllReportsFailingIndex(t *testing.T) {
	doc := document.Document{"sample": "flat"}
	ops := []Operation{
		Set{Path: mustPath("/a"), Value: 1},
		Set{Path: mustPath("/sample/label"), Value: "X"},
	}
	_, err := ApplyAll(doc, ops)
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OperationError, got %v", err)
	}
	if oe.Index != 1 || oe.Op.Kind() != KindSet {
		t.Fatalf("unexpected operation error %+v", oe)
	}
	if !errors.Is(err, ErrPathConflict) {
		t.Fatalf("expected wrapped conflict, got %v", err)
	}
	if doc["a"] != 1 {
		t.Fatalf("operations before the failure should have been applied")
	}
}

func TestValidate(t *testing.T) {
	bad := []Operation{
		nil,
		RenameKey{Path: mustPath("/a")},
		RenameKey{Key: "b"},
		Move{Path: mustPath("/a")},
		MapValues{Path: mustPath("/a")},
		MapValues{Path: mustPath("/a"), Table: []Mapping{{From: map[string]any{}, To: 1}}},
		Remove{},
		Set{Value: 1},
	}
	for _, op := range bad {
		if err := Validate(op); !errors.Is(err, ErrInvalidOperation) {
			t.Fatalf("Validate(%v) expected ErrInvalidOperation, got %v", op, err)
		}
	}
	if _, err := Apply(document.Document{}, nil); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("Apply(nil) expected ErrInvalidOperation, got %v", err)
	}
	good := []Operation{
		RenameKey{Path: mustPath("/a"), Key: "b"},
		Move{Path: mustPath("/a"), To: mustPath("/b")},
		NewMapValues(mustPath("/a"), map[string]any{"x": "y"}),
		Remove{Path: mustPath("/a")},
		Set{Path: mustPath("/a"), Value: nil},
	}
	for _, op := range good {
		if err := Validate(op); err != nil {
			t.Fatalf("Validate(%s): %v", op, err)
		}
	}
}
