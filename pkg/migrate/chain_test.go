package migrate

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"labdoc/pkg/document"
)

func sampleChain(t *testing.T) *Chain {
	t.Helper()
	c, err := NewChain(Config{
		Tag: legacyTag(),
		Patches: []Patch{
			{
				From: "0.0.2", To: "0.0.3",
				Operations: []Operation{RenameKey{Path: mustPath("/Sample"), Key: "sample"}},
			},
			{
				From: "0.0.3", To: "0.1.0",
				Operations: []Operation{
					Move{Path: mustPath("/sample/Label"), To: mustPath("/sample/label")},
					Set{Path: mustPath("/sample/physical_form"), Value: ""},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func TestMigrateLegacySample(t *testing.T) {
	c := sampleChain(t)
	if c.Current() != "0.1.0" || c.Legacy() != "0.0.2" {
		t.Fatalf("derived versions = %s,%s", c.Current(), c.Legacy())
	}
	doc := document.Document{
		"Sample":   map[string]any{"Label": "X"},
		"Metadata": map[string]any{"schema_version": "0.0.2"},
	}
	rep, err := c.Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	want := map[string]any{
		"sample":   map[string]any{"label": "X", "physical_form": ""},
		"metadata": map[string]any{"schema_version": "0.1.0"},
	}
	if diff := cmp.Diff(want, map[string]any(doc)); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
	wantSteps := []Step{{From: "0.0.2", To: "0.0.3", Operations: 1}, {From: "0.0.3", To: "0.1.0", Operations: 2}}
	if diff := cmp.Diff(wantSteps, rep.Applied); diff != "" {
		t.Fatalf("unexpected steps (-want +got):\n%s", diff)
	}
	if rep.From != "0.0.2" || rep.To != "0.1.0" || rep.Legacy || !rep.Changed() {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	c := sampleChain(t)
	doc := document.Document{
		"Sample":   map[string]any{"Label": "X"},
		"Metadata": map[string]any{"schema_version": "0.0.2"},
	}
	if _, err := c.Migrate(doc); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	once := document.Clone(doc)
	rep, err := c.Migrate(doc)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if rep.Changed() || rep.From != "0.1.0" || rep.To != "0.1.0" {
		t.Fatalf("second run should be a no-op, got %+v", rep)
	}
	if diff := cmp.Diff(map[string]any(once), map[string]any(doc)); diff != "" {
		t.Fatalf("second run changed the document (-once +twice):\n%s", diff)
	}
}

func TestMigrateUntaggedConverges(t *testing.T) {
	c := sampleChain(t)
	tagged := document.Document{
		"Sample":   map[string]any{"Label": "X"},
		"Metadata": map[string]any{"schema_version": "0.0.2"},
	}
	untagged := document.Document{"Sample": map[string]any{"Label": "X"}}
	if _, err := c.Migrate(tagged); err != nil {
		t.Fatalf("Migrate tagged: %v", err)
	}
	rep, err := c.Migrate(untagged)
	if err != nil {
		t.Fatalf("Migrate untagged: %v", err)
	}
	if !rep.Legacy || rep.From != "0.0.2" {
		t.Fatalf("untagged document should start at the legacy version, got %+v", rep)
	}
	if diff := cmp.Diff(map[string]any(tagged), map[string]any(untagged)); diff != "" {
		t.Fatalf("documents did not converge (-tagged +untagged):\n%s", diff)
	}
}

func TestMigrateStartsMidChain(t *testing.T) {
	c := sampleChain(t)
	doc := document.Document{
		"sample":   map[string]any{"Label": "Y", "mass": 12.5},
		"metadata": map[string]any{"schema_version": "0.0.3"},
	}
	rep, err := c.Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(rep.Applied) != 1 {
		t.Fatalf("expected one patch, got %+v", rep.Applied)
	}
	want := map[string]any{
		"sample":   map[string]any{"label": "Y", "mass": 12.5, "physical_form": ""},
		"metadata": map[string]any{"schema_version": "0.1.0"},
	}
	if diff := cmp.Diff(want, map[string]any(doc)); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestMigrateToleratesMissingOptionalFields(t *testing.T) {
	c := sampleChain(t)
	doc := document.Document{"metadata": map[string]any{"schema_version": "0.0.2"}}
	if _, err := c.Migrate(doc); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	want := map[string]any{
		"sample":   map[string]any{"physical_form": ""},
		"metadata": map[string]any{"schema_version": "0.1.0"},
	}
	if diff := cmp.Diff(want, map[string]any(doc)); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestMigratePreservesUntouchedData(t *testing.T) {
	c := sampleChain(t)
	doc := document.Document{
		"Sample":   map[string]any{"Label": "X"},
		"Metadata": map[string]any{"schema_version": "0.0.2", "operator": "kb"},
		"spectra":  []any{map[string]any{"nucleus": "1H", "scans": 16}, map[string]any{"nucleus": "13C"}},
		"notes":    nil,
	}
	before := leaves(t, doc, "/spectra", "/notes", "/Metadata/operator")
	if _, err := c.Migrate(doc); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	after := leaves(t, doc, "/spectra", "/notes", "/metadata/operator")
	if len(before) != len(after) {
		t.Fatalf("leaf count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if !document.Equal(before[i], after[i]) {
			t.Fatalf("leaf %d changed: %v -> %v", i, before[i], after[i])
		}
	}
}

func leaves(t *testing.T, doc document.Document, roots ...string) []any {
	t.Helper()
	var out []any
	err := document.Walk(doc, func(path document.Path, v any) error {
		for _, r := range roots {
			if path.HasPrefix(mustPath(r)) {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return out
}

func TestMigrateMapAndRemove(t *testing.T) {
	c, err := NewChain(Config{Patches: []Patch{
		{From: "0.1.0", To: "0.2.0", Operations: []Operation{
			NewMapValues(mustPath("/sample/physical_form"), map[string]any{"Solid": "solid", "Liquid": "liquid"}),
			Remove{Path: mustPath("/sample/legacy_flag")},
		}},
	}})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	doc := document.Document{
		"sample":   map[string]any{"physical_form": "Solid", "legacy_flag": true, "label": "X"},
		"metadata": map[string]any{"schema_version": "0.1.0"},
	}
	if _, err := c.Migrate(doc); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	want := map[string]any{
		"sample":   map[string]any{"physical_form": "solid", "label": "X"},
		"metadata": map[string]any{"schema_version": "0.2.0"},
	}
	if diff := cmp.Diff(want, map[string]any(doc)); diff != "" {
		t.Fatalf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestMigrateComposesPatches(t *testing.T) {
	patches := []Patch{
		{From: "1.0.0", To: "1.1.0", Operations: []Operation{RenameKey{Path: mustPath("/a"), Key: "b"}}},
		{From: "1.1.0", To: "1.2.0", Operations: []Operation{Move{Path: mustPath("/b"), To: mustPath("/nested/c")}}},
	}
	viaChain := document.Document{"a": "v", "metadata": map[string]any{"schema_version": "1.0.0"}}
	if _, err := Migrate(viaChain, Config{Patches: patches}); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	stepwise := document.Document{"a": "v", "metadata": map[string]any{"schema_version": "1.0.0"}}
	for _, patch := range patches {
		if _, err := Migrate(stepwise, Config{Patches: []Patch{patch}}); err != nil {
			t.Fatalf("Migrate %s: %v", patch, err)
		}
	}
	if diff := cmp.Diff(map[string]any(stepwise), map[string]any(viaChain)); diff != "" {
		t.Fatalf("chain differs from step-by-step (-steps +chain):\n%s", diff)
	}
}

func TestMigrateNoPath(t *testing.T) {
	c := sampleChain(t)
	tests := []struct {
		name string
		tag  any
	}{
		{"newer than current", "0.9.0"},
		{"unknown", "0.0.1"},
		{"not a version", "banana"},
		{"not a string", 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := document.Document{
				"sample":   map[string]any{"label": "X"},
				"metadata": map[string]any{"schema_version": tc.tag},
			}
			before := document.Clone(doc)
			_, err := c.Migrate(doc)
			if !errors.Is(err, ErrNoMigrationPath) {
				t.Fatalf("expected ErrNoMigrationPath, got %v", err)
			}
			var np *NoPathError
			if !errors.As(err, &np) {
				t.Fatalf("expected *NoPathError, got %T", err)
			}
			if Retryable(err) {
				t.Fatalf("no-path errors are not retryable")
			}
			if diff := cmp.Diff(map[string]any(before), map[string]any(doc)); diff != "" {
				t.Fatalf("document changed on failure (-before +after):\n%s", diff)
			}
		})
	}
}

func TestMigrateDetectsCycle(t *testing.T) {
	c, err := NewChain(Config{
		Current: "0.3.0",
		Legacy:  "0.1.0",
		Patches: []Patch{
			{From: "0.1.0", To: "0.2.0"},
			{From: "0.2.0", To: "0.1.0"},
		},
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	doc := document.Document{"metadata": map[string]any{"schema_version": "0.1.0"}}
	_, err = c.Migrate(doc)
	if !errors.Is(err, ErrMigrationCycle) {
		t.Fatalf("expected ErrMigrationCycle, got %v", err)
	}
	var ce *CycleError
	if !errors.As(err, &ce) || ce.Limit != 2 || len(ce.Trail) != 3 {
		t.Fatalf("unexpected cycle error %#v", err)
	}
	if !strings.Contains(err.Error(), "0.1.0 -> 0.2.0 -> 0.1.0") {
		t.Fatalf("cycle error should show the trail, got %q", err)
	}
	if _, err := c.Plan("0.1.0"); !errors.Is(err, ErrMigrationCycle) {
		t.Fatalf("Plan expected ErrMigrationCycle, got %v", err)
	}
}

func TestMigrateDeadEndIsNoPath(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		tag     string
		stuckAt Version
		applied int
	}{
		{
			name: "current beyond last target",
			cfg: Config{
				Current: "0.4.0",
				Patches: []Patch{{From: "0.1.0", To: "0.2.0"}, {From: "0.2.0", To: "0.3.0"}},
			},
			tag:     "0.1.0",
			stuckAt: "0.3.0",
			applied: 2,
		},
		{
			name:    "empty chain",
			cfg:     Config{Current: "1.0.0"},
			tag:     "0.9.0",
			stuckAt: "0.9.0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewChain(tc.cfg)
			if err != nil {
				t.Fatalf("NewChain: %v", err)
			}
			doc := document.Document{"metadata": map[string]any{"schema_version": tc.tag}}
			rep, err := c.Migrate(doc)
			if errors.Is(err, ErrMigrationCycle) || !errors.Is(err, ErrNoMigrationPath) {
				t.Fatalf("expected ErrNoMigrationPath, got %v", err)
			}
			var np *NoPathError
			if !errors.As(err, &np) || np.Version != tc.stuckAt {
				t.Fatalf("expected dead end at %s, got %#v", tc.stuckAt, err)
			}
			if len(rep.Applied) != tc.applied {
				t.Fatalf("applied %d patches, want %d", len(rep.Applied), tc.applied)
			}
			plan, err := c.Plan(MustParseVersion(tc.tag))
			if !errors.Is(err, ErrNoMigrationPath) || len(plan) != tc.applied {
				t.Fatalf("Plan = %v, %v", plan, err)
			}
		})
	}
}

func TestMigrateConflictNamesPatch(t *testing.T) {
	c := sampleChain(t)
	doc := document.Document{
		"sample":   "flat",
		"metadata": map[string]any{"schema_version": "0.0.3"},
	}
	_, err := c.Migrate(doc)
	if !errors.Is(err, ErrPathConflict) {
		t.Fatalf("expected ErrPathConflict, got %v", err)
	}
	var pe *PatchError
	if !errors.As(err, &pe) || pe.From != "0.0.3" || pe.To != "0.1.0" {
		t.Fatalf("expected patch error for 0.0.3 -> 0.1.0, got %v", err)
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Index != 0 {
		t.Fatalf("expected failing operation 0, got %v", err)
	}
}

func TestNewChainRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad source", Config{Patches: []Patch{{From: "one", To: "0.2.0"}}}},
		{"bad target", Config{Patches: []Patch{{From: "0.1.0", To: ""}}}},
		{"duplicate source", Config{Patches: []Patch{{From: "0.1.0", To: "0.2.0"}, {From: "0.1.0", To: "0.3.0"}}}},
		{"invalid operation", Config{Patches: []Patch{{From: "0.1.0", To: "0.2.0", Operations: []Operation{Remove{}}}}}},
		{"no derivable current", Config{Patches: []Patch{{From: "0.1.0", To: "0.2.0"}, {From: "0.2.0", To: "0.1.0"}}}},
		{"two ends", Config{Patches: []Patch{{From: "0.1.0", To: "0.2.0"}, {From: "0.5.0", To: "0.6.0"}}}},
		{"empty without current", Config{}},
		{"bad explicit current", Config{Current: "latest"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewChain(tc.cfg); !errors.Is(err, ErrInvalidChain) {
				t.Fatalf("expected ErrInvalidChain, got %v", err)
			}
		})
	}
}

func TestEmptyChainStampsNothing(t *testing.T) {
	c, err := NewChain(Config{Current: "1.0.0"})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if c.Legacy() != "1.0.0" {
		t.Fatalf("empty chain legacy = %s", c.Legacy())
	}
	doc := document.Document{"x": 1}
	rep, err := c.Migrate(doc)
	if err != nil || rep.Changed() {
		t.Fatalf("Migrate = %+v, %v", rep, err)
	}
	if _, ok := doc["metadata"]; ok {
		t.Fatalf("untagged document at the current version must not be stamped")
	}
}

func TestChainPlanAndPatches(t *testing.T) {
	c := sampleChain(t)
	plan, err := c.Plan("0.0.3")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 1 || plan[0].String() != "0.0.3 -> 0.1.0" {
		t.Fatalf("unexpected plan %v", plan)
	}
	all := c.Patches()
	if len(all) != 2 || all[0].From != "0.0.2" || all[1].To != "0.1.0" || c.Len() != 2 {
		t.Fatalf("unexpected patches %v", all)
	}
	if _, err := c.Plan("2.0.0"); !errors.Is(err, ErrNoMigrationPath) {
		t.Fatalf("expected ErrNoMigrationPath, got %v", err)
	}
}

func TestMigrateNilDocument(t *testing.T) {
	c := sampleChain(t)
	if _, err := c.Migrate(nil); !errors.Is(err, document.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}
