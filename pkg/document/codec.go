package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
)

// Format identifies a serialization of a Document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ContentType returns the MIME type used when storing documents in f.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/json"
	}
}

// ParseFormat accepts json/j and yaml/yml/y.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "j":
		return FormatJSON, nil
	case "yaml", "yml", "y":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown document format %q", s)
}

// FormatFromName guesses a format from a file name or storage key extension.
// It returns "" when the extension is not recognised.
func FormatFromName(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return ""
}

// FormatFromContentType maps a MIME type to a format, or "" if unknown.
func FormatFromContentType(ct string) Format {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	switch ct {
	case "application/json", "text/json":
		return FormatJSON
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML
	}
	return ""
}

// Decode parses data as a Document. Blank input decodes to an empty document.
// JSON numbers are kept as json.Number so integer identifiers survive a
// round trip unchanged. YAML integers written with leading zeros, such as
// sample_id: 0012, decode as strings instead of octal numbers.
func Decode(data []byte, f Format) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	var v any
	switch f {
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		if dec.More() {
			return nil, fmt.Errorf("decode json: trailing data after document")
		}
	case FormatYAML:
		file, err := parser.ParseBytes(data, 0)
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if len(file.Docs) == 0 || file.Docs[0].Body == nil {
			return Document{}, nil
		}
		body := file.Docs[0].Body
		ast.Walk(zeroPadded{}, body)
		if err := yaml.NodeToValue(body, &v); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode: unknown format %q", f)
	}
	switch m := fromDecoded(v).(type) {
	case map[string]any:
		return Document(m), nil
	case nil:
		return Document{}, nil
	default:
		return nil, fmt.Errorf("%w: got %s", ErrNotMapping, kindOf(m))
	}
}

// zeroPadded rewrites integer scalars with leading zeros into string scalars
// before decoding.
type zeroPadded struct{}

func (w zeroPadded) Visit(n ast.Node) ast.Visitor {
	switch n := n.(type) {
	case *ast.MappingValueNode:
		n.Value = keepDigits(n.Value)
	case *ast.SequenceNode:
		for i, v := range n.Values {
			n.Values[i] = keepDigits(v)
		}
	}
	return w
}

func keepDigits(n ast.Node) ast.Node {
	in, ok := n.(*ast.IntegerNode)
	if !ok || in.Token == nil || !isZeroPadded(in.Token.Value) {
		return n
	}
	return ast.String(in.Token)
}

func isZeroPadded(s string) bool {
	if len(s) < 2 || s[0] != '0' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Encode serializes doc. JSON output is indented with sorted keys and ends
// with a newline.
func Encode(doc Document, f Format) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	switch f {
	case FormatJSON, "":
		b, err := json.MarshalIndent(map[string]any(doc), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(b, '\n'), nil
	case FormatYAML:
		b, err := yaml.Marshal(toEncodable(map[string]any(doc)))
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("encode: unknown format %q", f)
}

// Plain rewrites decoder output in place so every mapping is a map[string]any,
// the only mapping type the resolver understands. Values decoded by YAML
// libraries elsewhere should pass through it before entering a Document.
func Plain(v any) any { return fromDecoded(v) }

func fromDecoded(v any) any {
	switch c := v.(type) {
	case map[string]any:
		for k, e := range c {
			c[k] = fromDecoded(e)
		}
		return c
	case map[any]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[fmt.Sprint(k)] = fromDecoded(e)
		}
		return out
	case []any:
		for i, e := range c {
			c[i] = fromDecoded(e)
		}
		return c
	default:
		return v
	}
}

// toEncodable replaces json.Number, which YAML would quote as a string, with
// a native integer or float.
func toEncodable(v any) any {
	switch c := normalize(v).(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[k] = toEncodable(e)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = toEncodable(e)
		}
		return out
	case json.Number:
		if i, err := c.Int64(); err == nil {
			return i
		}
		if f, err := c.Float64(); err == nil {
			return f
		}
		return c.String()
	default:
		return c
	}
}
