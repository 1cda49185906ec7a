package crud

import (
	"fmt"
	"sort"
	"sync"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Definition bundles everything a list page of one resource is built from:
// its form, grid and filters. Name is the URL segment of the resource.
type Definition struct {
	Name    string
	Title   string
	Schema  formschema.Schema
	Table   datatable.Table
	Filters filterbar.Bar
	// ReadRoles restricts listing and viewing. Empty means every
	// authenticated user.
	ReadRoles []string

	mu        sync.RWMutex
	validator *formschema.Validator
}

// MustDefine compiles a definition and panics on an invalid schema. It is
// meant for package-level resource declarations.
func MustDefine(d *Definition) *Definition {
	if err := d.compile(); err != nil {
		panic(err)
	}
	return d
}

func (d *Definition) compile() error {
	v, err := formschema.Compile(d.Schema)
	if err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	d.mu.Lock()
	d.validator = v
	d.mu.Unlock()
	return nil
}

// Validator returns the compiled form validator.
func (d *Definition) Validator() *formschema.Validator {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.validator
}

// Override merges a schema loaded from configuration onto the built-in one
// and recompiles it. The result must still compile.
func (d *Definition) Override(s formschema.Schema) error {
	merged := formschema.Merge(d.Schema, s)
	v, err := formschema.Compile(merged)
	if err != nil {
		return fmt.Errorf("%s override: %w", d.Name, err)
	}
	d.mu.Lock()
	d.Schema = merged
	d.validator = v
	d.mu.Unlock()
	return nil
}

// RolesFor returns the roles allowed to perform action and whether the
// action is offered at all.
func (d *Definition) RolesFor(action datatable.Action) ([]string, bool) {
	for _, ra := range d.Table.Actions {
		if ra.Action == action {
			return ra.Roles, true
		}
	}
	return nil, false
}

// Description is the document the schemas endpoint serves for a resource.
type Description struct {
	Name    string                 `json:"name"`
	Title   string                 `json:"title"`
	Form    formschema.Description `json:"form"`
	Table   datatable.Table        `json:"table"`
	Filters []filterbar.Definition `json:"filters"`
	Actions []datatable.Action     `json:"actions"`
}

// Describe returns the description seen by a caller holding roles.
func (d *Definition) Describe(roles []string) Description {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Description{
		Name:    d.Name,
		Title:   d.Title,
		Form:    d.Schema.Describe(),
		Table:   d.Table,
		Filters: d.Filters.Describe(),
		Actions: d.Table.ActionsFor(roles),
	}
}

// Catalog indexes the definitions of every resource.
type Catalog struct {
	defs map[string]*Definition
}

// NewCatalog returns a catalog over defs.
func NewCatalog(defs ...*Definition) *Catalog {
	c := &Catalog{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		c.defs[d.Name] = d
	}
	return c
}

// Get looks a definition up by resource name.
func (c *Catalog) Get(name string) (*Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Names returns the resource names in alphabetical order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.defs))
	for n := range c.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ApplyOverrides loads YAML schema overrides from dir, one file per
// resource named after it. A missing dir is not an error; an override for
// an unknown resource is.
func (c *Catalog) ApplyOverrides(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	schemas, err := formschema.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	var applied []string
	for name, s := range schemas {
		d, ok := c.defs[name]
		if !ok {
			return applied, fmt.Errorf("schema override for unknown resource %q", name)
		}
		if err := d.Override(s); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	sort.Strings(applied)
	return applied, nil
}
