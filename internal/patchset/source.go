package patchset

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"labdoc/internal/docstore"
	"labdoc/pkg/document"
	"labdoc/pkg/migrate"
)

//go:embed bundled/*.yaml
var bundledFS embed.FS

// Source yields the patch list for a migration session.
type Source interface {
	Patches(ctx context.Context) ([]migrate.Patch, error)
	String() string
}

// IsPatchFile reports whether name has a patch file extension.
func IsPatchFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

type fsSource struct {
	name string
	fsys fs.FS
}

// Bundled returns the sample-record patch chain compiled into the binary.
func Bundled() Source {
	sub, err := fs.Sub(bundledFS, "bundled")
	if err != nil {
		panic(err)
	}
	return fsSource{name: "bundled", fsys: sub}
}

// Dir reads every patch file directly inside dir.
func Dir(dir string) Source {
	return fsSource{name: dir, fsys: os.DirFS(dir)}
}

func (s fsSource) String() string { return s.name }

func (s fsSource) Patches(ctx context.Context) ([]migrate.Patch, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read patch directory %s: %w", s.name, err)
	}
	var out []migrate.Patch
	for _, e := range entries {
		if e.IsDir() || !IsPatchFile(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(s.fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read patch file %s: %w", e.Name(), err)
		}
		patches, err := decodeNamed(filepath.Join(s.name, e.Name()), data)
		if err != nil {
			return nil, err
		}
		out = append(out, patches...)
	}
	return out, nil
}

type httpSource struct {
	url    string
	client *http.Client
}

// HTTP fetches a single patch file, usually holding a patches list, from url.
// A nil client uses a client with a 30 second timeout.
func HTTP(url string, client *http.Client) Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return httpSource{url: url, client: client}
}

func (s httpSource) String() string { return s.url }

func (s httpSource) Patches(ctx context.Context) ([]migrate.Patch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/yaml, application/json;q=0.9")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch patches %s: %w", s.url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch patches %s: unexpected status %s", s.url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch patches %s: %w", s.url, err)
	}
	return decodeNamed(s.url, data)
}

type storeSource struct {
	store  docstore.Store
	prefix string
}

// Store reads every patch file under prefix from a document store.
func Store(store docstore.Store, prefix string) Source {
	return storeSource{store: store, prefix: prefix}
}

func (s storeSource) String() string {
	return fmt.Sprintf("store:%s (%s)", s.prefix, s.store.Driver())
}

func (s storeSource) Patches(ctx context.Context) ([]migrate.Patch, error) {
	infos, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list patches under %q: %w", s.prefix, err)
	}
	var out []migrate.Patch
	for _, info := range infos {
		if !IsPatchFile(info.Key) {
			continue
		}
		_, rc, err := s.store.Get(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("read patch %s: %w", info.Key, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read patch %s: %w", info.Key, err)
		}
		patches, err := decodeNamed(info.Key, data)
		if err != nil {
			return nil, err
		}
		out = append(out, patches...)
	}
	return out, nil
}

// Static serves a fixed patch list.
type Static []migrate.Patch

func (s Static) Patches(context.Context) ([]migrate.Patch, error) { return s, nil }
func (s Static) String() string                                  { return fmt.Sprintf("static (%d patches)", len(s)) }

// FromSpec resolves a source description as used by LABDOC_PATCH_SOURCE and
// the -patches flag: "" or "bundled", an http(s) URL, "store:<prefix>" (read
// from store, which must then be non-nil) or a directory path.
func FromSpec(spec string, store docstore.Store) (Source, error) {
	switch {
	case spec == "" || spec == "bundled":
		return Bundled(), nil
	case strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://"):
		return HTTP(spec, nil), nil
	case strings.HasPrefix(spec, "store:"):
		if store == nil {
			return nil, fmt.Errorf("patch source %q needs a document store", spec)
		}
		return Store(store, strings.TrimPrefix(spec, "store:")), nil
	}
	st, err := os.Stat(spec)
	if err != nil {
		return nil, fmt.Errorf("patch source %q: %w", spec, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("patch source %q is not a directory", spec)
	}
	return Dir(spec), nil
}

// FromEnv resolves LABDOC_PATCH_SOURCE.
func FromEnv(store docstore.Store) (Source, error) {
	return FromSpec(os.Getenv("LABDOC_PATCH_SOURCE"), store)
}

// SampleTag is where sample records keep their version. Records written by
// older tools carry it under /Metadata and are moved on their first upgrade.
func SampleTag() migrate.Tag {
	return migrate.Tag{
		Path:   migrate.DefaultTagPath,
		Legacy: []document.Path{document.MustParsePath("/Metadata/schema_version")},
	}
}

// LoadChain reads src and builds a chain using tag.
func LoadChain(ctx context.Context, src Source, tag migrate.Tag) (*migrate.Chain, error) {
	patches, err := src.Patches(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := migrate.NewChain(migrate.Config{Patches: patches, Tag: tag})
	if err != nil {
		return nil, fmt.Errorf("patch source %s: %w", src, err)
	}
	return chain, nil
}
