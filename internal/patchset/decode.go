package patchset

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"labdoc/pkg/document"
	"labdoc/pkg/migrate"
)

// ErrInvalidPatch reports a patch definition that cannot be decoded.
var ErrInvalidPatch = errors.New("invalid patch definition")

// DecodeError locates a decoding failure inside a patch file.
type DecodeError struct {
	Source    string
	Patch     int // -1 when the failure is not tied to one patch
	Operation int // -1 when the failure is not tied to one operation
	Err       error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("patch definition")
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	if e.Patch >= 0 {
		fmt.Fprintf(&b, " patch %d", e.Patch)
	}
	if e.Operation >= 0 {
		fmt.Fprintf(&b, " operation %d", e.Operation)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidPatch.
func (e *DecodeError) Is(target error) bool { return target == ErrInvalidPatch }

type wirePatch struct {
	From        string           `yaml:"from"`
	To          string           `yaml:"to"`
	Description string           `yaml:"description"`
	Operations  []map[string]any `yaml:"operations"`
}

type wireFile struct {
	From        string           `yaml:"from"`
	To          string           `yaml:"to"`
	Description string           `yaml:"description"`
	Operations  []map[string]any `yaml:"operations"`
	Patches     []wirePatch      `yaml:"patches"`
}

// Decode parses a patch file. A file holds either a single patch at the top
// level or a list under "patches". JSON input is accepted as YAML.
func Decode(data []byte) ([]migrate.Patch, error) {
	return decodeNamed("", data)
}

func decodeNamed(name string, data []byte) ([]migrate.Patch, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var f wireFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, &DecodeError{Source: name, Patch: -1, Operation: -1, Err: err}
	}
	single := f.From != "" || f.To != "" || len(f.Operations) > 0
	if single && len(f.Patches) > 0 {
		return nil, &DecodeError{Source: name, Patch: -1, Operation: -1,
			Err: errors.New("file mixes a top-level patch with a patches list")}
	}
	wires := f.Patches
	if single {
		wires = []wirePatch{{From: f.From, To: f.To, Description: f.Description, Operations: f.Operations}}
	}
	out := make([]migrate.Patch, 0, len(wires))
	for i, w := range wires {
		p, err := w.patch()
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				de.Source, de.Patch = name, i
				return nil, de
			}
			return nil, &DecodeError{Source: name, Patch: i, Operation: -1, Err: err}
		}
		out = append(out, p)
	}
	return out, nil
}

func (w wirePatch) patch() (migrate.Patch, error) {
	from, err := migrate.ParseVersion(w.From)
	if err != nil {
		return migrate.Patch{}, fmt.Errorf("from: %w", err)
	}
	to, err := migrate.ParseVersion(w.To)
	if err != nil {
		return migrate.Patch{}, fmt.Errorf("to: %w", err)
	}
	p := migrate.Patch{From: from, To: to, Description: w.Description}
	for i, raw := range w.Operations {
		op, err := decodeOperation(raw)
		if err != nil {
			return migrate.Patch{}, &DecodeError{Operation: i, Err: err}
		}
		p.Operations = append(p.Operations, op)
	}
	return p, nil
}

// allowed lists the fields each operation kind may carry besides "op".
var allowed = map[migrate.Kind][]string{
	migrate.KindRenameKey: {"path", "key"},
	migrate.KindMove:      {"path", "to"},
	migrate.KindMap:       {"path", "values", "table"},
	migrate.KindRemove:    {"path"},
	migrate.KindSet:       {"path", "value"},
}

func decodeOperation(raw map[string]any) (migrate.Operation, error) {
	fields := document.Plain(raw).(map[string]any)
	kindName, _ := fields["op"].(string)
	kind := migrate.Kind(kindName)
	keys, ok := allowed[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown op %q", migrate.ErrInvalidOperation, fields["op"])
	}
	for k := range fields {
		if k != "op" && !slices.Contains(keys, k) {
			return nil, fmt.Errorf("%w: %s does not take %q", migrate.ErrInvalidOperation, kind, k)
		}
	}
	path, err := pathField(fields, "path")
	if err != nil {
		return nil, err
	}

	var op migrate.Operation
	switch kind {
	case migrate.KindRenameKey:
		key, err := stringField(fields, "key")
		if err != nil {
			return nil, err
		}
		op = migrate.RenameKey{Path: path, Key: key}
	case migrate.KindMove:
		to, err := pathField(fields, "to")
		if err != nil {
			return nil, err
		}
		op = migrate.Move{Path: path, To: to}
	case migrate.KindMap:
		op, err = mapOperation(path, fields)
		if err != nil {
			return nil, err
		}
	case migrate.KindRemove:
		op = migrate.Remove{Path: path}
	case migrate.KindSet:
		v, present := fields["value"]
		if !present {
			return nil, fmt.Errorf("%w: set %s needs a value", migrate.ErrInvalidOperation, path)
		}
		op = migrate.Set{Path: path, Value: v}
	}
	if err := migrate.Validate(op); err != nil {
		return nil, err
	}
	return op, nil
}

func mapOperation(path document.Path, fields map[string]any) (migrate.Operation, error) {
	values, hasValues := fields["values"]
	table, hasTable := fields["table"]
	switch {
	case hasValues && hasTable:
		return nil, fmt.Errorf("%w: map %s takes values or table, not both", migrate.ErrInvalidOperation, path)
	case hasValues:
		m, ok := values.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: map %s values must be a mapping", migrate.ErrInvalidOperation, path)
		}
		return migrate.NewMapValues(path, m), nil
	case hasTable:
		rows, ok := table.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: map %s table must be a list", migrate.ErrInvalidOperation, path)
		}
		op := migrate.MapValues{Path: path}
		for i, row := range rows {
			r, ok := row.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: map %s table row %d must be a mapping", migrate.ErrInvalidOperation, path, i)
			}
			from, hasFrom := r["from"]
			to, hasTo := r["to"]
			if !hasFrom || !hasTo || len(r) != 2 {
				return nil, fmt.Errorf("%w: map %s table row %d needs exactly from and to", migrate.ErrInvalidOperation, path, i)
			}
			op.Table = append(op.Table, migrate.Mapping{From: from, To: to})
		}
		return op, nil
	}
	return nil, fmt.Errorf("%w: map %s needs values or table", migrate.ErrInvalidOperation, path)
}

func pathField(fields map[string]any, name string) (document.Path, error) {
	s, err := stringField(fields, name)
	if err != nil {
		return nil, err
	}
	p, err := document.ParsePath(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

func stringField(fields map[string]any, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", migrate.ErrInvalidOperation, name)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", migrate.ErrInvalidOperation, name)
	}
	return s, nil
}
