package migrate

import (
	"fmt"
	"sort"

	"labdoc/pkg/document"
)

// Patch upgrades a document from one version to the next.
type Patch struct {
	From        Version
	To          Version
	Description string
	Operations  []Operation
}

func (p Patch) String() string { return fmt.Sprintf("%s -> %s", p.From, p.To) }

// Config is the static migration configuration for a session.
type Config struct {
	Patches []Patch
	// Current is the version every migration ends at. When zero it is the
	// single patch target that no patch starts from.
	Current Version
	// Legacy is assumed for documents without a tag. When zero it is the
	// single patch source that no patch leads to.
	Legacy Version
	// Tag locates the version inside documents; zero means DefaultTag.
	Tag Tag
}

// Step records one applied patch.
type Step struct {
	From       Version
	To         Version
	Operations int
}

// Report describes the outcome of a migration.
type Report struct {
	From    Version
	To      Version
	Legacy  bool // the document carried no tag
	Applied []Step
}

// Changed reports whether any patch was applied.
func (r Report) Changed() bool { return len(r.Applied) > 0 }

// Chain is an indexed, validated patch list.
type Chain struct {
	bySource map[Version]Patch
	current  Version
	legacy   Version
	tag      Tag
	limit    int
}

// NewChain validates cfg and indexes its patches by source version. Two
// patches with the same source, invalid operations, or a current or legacy
// version that can neither be read from cfg nor derived from the patches
// yield ErrInvalidChain. Cycles are detected while migrating.
func NewChain(cfg Config) (*Chain, error) {
	c := &Chain{
		bySource: make(map[Version]Patch, len(cfg.Patches)),
		tag:      cfg.Tag,
		limit:    len(cfg.Patches),
	}
	if c.tag.Path.IsRoot() {
		c.tag.Path = DefaultTagPath
	}
	targets := make(map[Version]bool, len(cfg.Patches))
	for i, p := range cfg.Patches {
		from, err := ParseVersion(string(p.From))
		if err != nil {
			return nil, fmt.Errorf("%w: patch %d source: %v", ErrInvalidChain, i, err)
		}
		to, err := ParseVersion(string(p.To))
		if err != nil {
			return nil, fmt.Errorf("%w: patch %d target: %v", ErrInvalidChain, i, err)
		}
		if dup, ok := c.bySource[from]; ok {
			return nil, fmt.Errorf("%w: patches %s and %s -> %s share a source", ErrInvalidChain, dup, from, to)
		}
		for j, op := range p.Operations {
			if err := Validate(op); err != nil {
				return nil, fmt.Errorf("%w: patch %s -> %s operation %d: %v", ErrInvalidChain, from, to, j, err)
			}
		}
		p.From, p.To = from, to
		c.bySource[from] = p
		targets[to] = true
	}

	var err error
	if c.current, err = pickVersion("current", cfg.Current, func() []Version {
		var out []Version
		for v := range targets {
			if _, ok := c.bySource[v]; !ok {
				out = append(out, v)
			}
		}
		return out
	}); err != nil {
		return nil, err
	}
	if c.legacy, err = pickVersion("legacy", cfg.Legacy, func() []Version {
		if len(c.bySource) == 0 {
			return []Version{c.current}
		}
		var out []Version
		for v := range c.bySource {
			if !targets[v] {
				out = append(out, v)
			}
		}
		return out
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func pickVersion(name string, explicit Version, candidates func() []Version) (Version, error) {
	if !explicit.IsZero() {
		v, err := ParseVersion(string(explicit))
		if err != nil {
			return "", fmt.Errorf("%w: %s version: %v", ErrInvalidChain, name, err)
		}
		return v, nil
	}
	vs := candidates()
	if len(vs) != 1 {
		sort.Slice(vs, func(i, j int) bool { return vs[i].Compare(vs[j]) < 0 })
		return "", fmt.Errorf("%w: cannot derive %s version from patches (candidates %v)", ErrInvalidChain, name, vs)
	}
	return vs[0], nil
}

// Current returns the version every migration ends at.
func (c *Chain) Current() Version { return c.current }

// Legacy returns the version assumed for untagged documents.
func (c *Chain) Legacy() Version { return c.legacy }

// Tag returns the version tag location.
func (c *Chain) Tag() Tag { return c.tag }

// Len returns the number of patches.
func (c *Chain) Len() int { return len(c.bySource) }

// Version returns the version doc would be migrated from and whether it was
// read from a tag (false means the legacy default applies).
func (c *Chain) Version(doc document.Document) (Version, bool, error) {
	v, ok, err := c.tag.Get(doc)
	if err != nil {
		if np, isNP := err.(*NoPathError); isNP {
			np.Current = c.current
		}
		return "", false, err
	}
	if !ok {
		return c.legacy, false, nil
	}
	return v, true, nil
}

// Plan returns the patches that migrating a document at version from would
// apply, in order, without touching any document.
func (c *Chain) Plan(from Version) ([]Patch, error) {
	var plan []Patch
	v := from
	trail := []Version{v}
	for v.Compare(c.current) != 0 {
		p, ok := c.bySource[v]
		if !ok {
			return plan, &NoPathError{Version: v, Raw: string(v), Current: c.current}
		}
		if len(plan) >= c.limit {
			return plan, &CycleError{Limit: c.limit, Trail: trail}
		}
		plan = append(plan, p)
		v = p.To
		trail = append(trail, v)
	}
	return plan, nil
}

// Patches returns the patches reachable from the legacy version in order. It
// stops early if the chain is broken.
func (c *Chain) Patches() []Patch {
	plan, _ := c.Plan(c.legacy)
	return plan
}

// Migrate upgrades doc in place to the current version. The version tag is
// written after every applied patch. A document already at the current
// version is not touched.
func (c *Chain) Migrate(doc document.Document) (Report, error) {
	if doc == nil {
		return Report{}, fmt.Errorf("%w: nil document", document.ErrInvalidPath)
	}
	v, tagged, err := c.Version(doc)
	if err != nil {
		return Report{}, err
	}
	rep := Report{From: v, To: v, Legacy: !tagged}
	trail := []Version{v}
	for v.Compare(c.current) != 0 {
		p, ok := c.bySource[v]
		if !ok {
			return rep, &NoPathError{Version: v, Raw: string(v), Current: c.current}
		}
		// Only a version reached again can exceed the cap; a dead end is
		// reported above.
		if len(rep.Applied) >= c.limit {
			return rep, &CycleError{Limit: c.limit, Trail: trail}
		}
		if _, err := ApplyAll(doc, p.Operations); err != nil {
			return rep, &PatchError{From: p.From, To: p.To, Err: err}
		}
		v = p.To
		if err := c.tag.Set(doc, v); err != nil {
			return rep, &PatchError{From: p.From, To: p.To, Err: err}
		}
		rep.Applied = append(rep.Applied, Step{From: p.From, To: p.To, Operations: len(p.Operations)})
		rep.To = v
		trail = append(trail, v)
	}
	return rep, nil
}

// Migrate builds a chain from cfg and migrates doc with it.
func Migrate(doc document.Document, cfg Config) (Report, error) {
	c, err := NewChain(cfg)
	if err != nil {
		return Report{}, err
	}
	return c.Migrate(doc)
}
