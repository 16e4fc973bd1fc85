package document

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeJSONKeepsNumbers(t *testing.T) {
	doc, err := Decode([]byte(`{"id": 12345678901234567, "nmr_tube": {"diameter": 5.0}}`), FormatJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _, _ := Get(doc, MustParsePath("/id"))
	if n, ok := id.(json.Number); !ok || n.String() != "12345678901234567" {
		t.Fatalf("id should stay an exact json.Number, got %#v", id)
	}
	d, _, _ := Get(doc, MustParsePath("/nmr_tube/diameter"))
	if !Equal(d, 5.0) {
		t.Fatalf("diameter = %#v", d)
	}
	out, err := Encode(doc, FormatJSON)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(out), "12345678901234567") || !strings.HasSuffix(string(out), "\n") {
		t.Fatalf("unexpected json output %s", out)
	}
}

func TestDecodeYAML(t *testing.T) {
	src := `
sample:
  label: X
  solvents:
    - CDCl3
nmr_tube:
  diameter: 5
metadata:
  schema_version: 0.1.0
`
	doc, err := Decode([]byte(src), FormatYAML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for path, want := range map[string]any{
		"/sample/label":            "X",
		"/sample/solvents/0":       "CDCl3",
		"/nmr_tube/diameter":       5,
		"/metadata/schema_version": "0.1.0",
	} {
		got, ok, err := Get(doc, MustParsePath(path))
		if err != nil || !ok || !Equal(got, want) {
			t.Fatalf("%s = %#v (%v, %v) want %#v", path, got, ok, err, want)
		}
	}
}

func TestDecodeYAMLKeepsZeroPaddedIdentifiers(t *testing.T) {
	src := "sample_id: 0012\nwells: [007, 8]\ncount: 0\nrack:\n  - 0042\n"
	doc, err := Decode([]byte(src), FormatYAML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	check := func(doc Document) {
		t.Helper()
		for path, want := range map[string]any{
			"/sample_id": "0012",
			"/wells/0":   "007",
			"/wells/1":   8,
			"/count":     0,
			"/rack/0":    "0042",
		} {
			got, ok, err := Get(doc, MustParsePath(path))
			if err != nil || !ok || !Equal(got, want) {
				t.Fatalf("%s = %#v (%v, %v) want %#v", path, got, ok, err, want)
			}
		}
	}
	check(doc)

	out, err := Encode(doc, FormatYAML)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(out, FormatYAML)
	if err != nil {
		t.Fatalf("decode round trip: %v\n%s", err, out)
	}
	check(back)
}

func TestEncodeDecodeAcrossFormats(t *testing.T) {
	jsonDoc, err := Decode([]byte(`{"a": {"n": 7, "f": 2.5, "b": true, "z": null, "s": ["x"]}}`), FormatJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	y, err := Encode(jsonDoc, FormatYAML)
	if err != nil {
		t.Fatalf("encode yaml: %v", err)
	}
	if strings.Contains(string(y), `"7"`) {
		t.Fatalf("json numbers must not become yaml strings:\n%s", y)
	}
	back, err := Decode(y, FormatYAML)
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if !Equal(map[string]any(jsonDoc), map[string]any(back)) {
		t.Fatalf("documents differ after json->yaml->doc: %#v vs %#v", jsonDoc, back)
	}
}

func TestDecodeEdgeCases(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatYAML} {
		doc, err := Decode([]byte("  \n"), f)
		if err != nil || doc == nil || len(doc) != 0 {
			t.Fatalf("%s blank input: %v %v", f, doc, err)
		}
	}
	if _, err := Decode([]byte(`[1,2]`), FormatJSON); !errors.Is(err, ErrNotMapping) {
		t.Fatalf("expected ErrNotMapping, got %v", err)
	}
	if _, err := Decode([]byte("- a\n- b\n"), FormatYAML); !errors.Is(err, ErrNotMapping) {
		t.Fatalf("expected ErrNotMapping for yaml list, got %v", err)
	}
	if _, err := Decode([]byte(`{"a":1} {"b":2}`), FormatJSON); err == nil {
		t.Fatalf("expected trailing data error")
	}
	if _, err := Decode([]byte(`{}`), Format("toml")); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if _, err := Encode(Document{}, Format("toml")); err == nil {
		t.Fatalf("expected unknown format error on encode")
	}
}

func TestFormatDetection(t *testing.T) {
	if FormatFromName("samples/s-1.YML") != FormatYAML || FormatFromName("s.json") != FormatJSON || FormatFromName("s.txt") != "" {
		t.Fatalf("FormatFromName misdetects")
	}
	if FormatFromContentType("application/json; charset=utf-8") != FormatJSON || FormatFromContentType("text/yaml") != FormatYAML || FormatFromContentType("text/plain") != "" {
		t.Fatalf("FormatFromContentType misdetects")
	}
	if f, err := ParseFormat("Y"); err != nil || f != FormatYAML {
		t.Fatalf("ParseFormat(Y) = %v %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected ParseFormat error")
	}
	if FormatYAML.ContentType() != "application/yaml" || FormatJSON.ContentType() != "application/json" {
		t.Fatalf("unexpected content types")
	}
}
