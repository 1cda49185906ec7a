package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
	"github.com/carecenter/dashboard/pkg/client"
	"github.com/carecenter/dashboard/pkg/slice"
)

// Row is a resource row as the API serves it.
type Row map[string]any

func rowID(r *Row) uuid.UUID {
	s, _ := (*r)["id"].(string)
	id, _ := uuid.Parse(s)
	return id
}

// cell reads a grid cell. JSON arrays are shown as lists.
func cell(r *Row, key string) any {
	v := (*r)[key]
	if items, ok := v.([]any); ok {
		out := make([]string, len(items))
		for i, item := range items {
			out[i] = fmt.Sprint(item)
		}
		return out
	}
	return v
}

// page is one resource screen: its description from the schemas endpoint
// and the slice holding its rows.
type page struct {
	desc crud.Description
	form *formschema.Validator
	bar  filterbar.Bar
	api  *client.Resource[Row]
	rows *slice.Slice[Row]
}

func openPage(ctx context.Context, c *client.Client, resource string) (*page, error) {
	var desc crud.Description
	if err := c.GetJSON(ctx, "/schemas/"+url.PathEscape(resource), nil, &desc); err != nil {
		return nil, fmt.Errorf("%s: %w", resource, err)
	}
	v, err := formschema.Compile(desc.Form.Schema)
	if err != nil {
		return nil, fmt.Errorf("%s form: %w", resource, err)
	}
	bar := filterbar.New(desc.Filters...)
	api := client.NewResource[Row](c, desc.Name, desc.Form.Schema)
	return &page{
		desc: desc,
		form: v,
		bar:  bar,
		api:  api,
		rows: slice.New[Row](api, bar, rowID),
	}, nil
}

// allows reports whether the caller may run action on rows.
func (p *page) allows(action datatable.Action) bool {
	for _, a := range p.desc.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func (p *page) require(action datatable.Action) error {
	if !p.allows(action) {
		return fmt.Errorf("%s: %s is not permitted", p.desc.Name, action)
	}
	return nil
}

// parseFilters turns key=value pairs into filter values. Unknown keys are
// rejected with the list of accepted ones.
func (p *page) parseFilters(pairs []string) (filterbar.Values, error) {
	known := make(map[string]bool)
	for _, k := range p.bar.Params() {
		known[k] = true
	}
	raw := url.Values{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("filter %q must be key=value", pair)
		}
		if !known[k] {
			params := p.bar.Params()
			sort.Strings(params)
			return nil, fmt.Errorf("unknown filter %q (have %s)", k, strings.Join(params, ", "))
		}
		raw.Set(k, v)
	}
	return p.bar.Parse(raw)
}

// list fetches a page through the slice and renders it as a grid.
func (p *page) list(ctx context.Context, w io.Writer, q datatable.Query, filters filterbar.Values) error {
	if err := p.rows.FetchList(ctx, q, filters); err != nil {
		return err
	}
	st := p.rows.Snapshot()
	grid := st.Page
	grid.Rows = st.Rows()
	return datatable.Render(w, p.desc.Table, grid, cell)
}

// show prints one row as labelled form values.
func (p *page) show(ctx context.Context, w io.Writer, id uuid.UUID) error {
	row, err := p.rows.FetchOne(ctx, id)
	if err != nil {
		return err
	}
	values, _ := p.form.FromJSON(*row)
	fmt.Fprintln(w, titleStyle.Render(p.desc.Form.Schema.Title))
	fmt.Fprintln(w, detailLine("ID", id.String()))
	for _, f := range p.desc.Form.Schema.Fields {
		if f.Hidden || f.Type == formschema.FieldPassword {
			continue
		}
		fmt.Fprintln(w, detailLine(f.DisplayLabel(), displayValue(f, values[f.Name])))
	}
	for _, key := range []string{"created_at", "updated_at"} {
		if s, ok := (*row)[key].(string); ok {
			fmt.Fprintln(w, detailLine(key, datatable.FormatCell(datatable.Column{Format: "datetime"}, s)))
		}
	}
	return nil
}

// displayValue renders a form value, showing option labels for choices.
func displayValue(f formschema.Field, val any) string {
	label := func(v string) string {
		for _, o := range f.Options {
			if o.Value == v && o.Label != "" {
				return o.Label
			}
		}
		return v
	}
	switch t := val.(type) {
	case string:
		if f.Type == formschema.FieldSelect {
			return label(t)
		}
	case []string:
		out := make([]string, len(t))
		for i, v := range t {
			out[i] = label(v)
		}
		return strings.Join(out, ", ")
	case bool:
		if t {
			return "yes"
		}
		return "no"
	}
	return formschema.FormatValue(f, val)
}

// create prompts for a new row and stores it through the slice.
func (p *page) create(ctx context.Context, pr *dynform.Prompter, initial formschema.Values) (*Row, error) {
	if err := p.require(datatable.ActionEdit); err != nil {
		return nil, err
	}
	var created *Row
	form := dynform.New(p.form, dynform.ModeCreate, initial)
	err := pr.Run(ctx, form, func(ctx context.Context, values formschema.Values) error {
		row, err := p.rows.Create(ctx, values)
		created = row
		return err
	})
	return created, err
}

// edit loads a row, prompts over its values and sends the changed ones.
func (p *page) edit(ctx context.Context, pr *dynform.Prompter, id uuid.UUID) (*Row, error) {
	if err := p.require(datatable.ActionEdit); err != nil {
		return nil, err
	}
	row, err := p.rows.FetchOne(ctx, id)
	if err != nil {
		return nil, err
	}
	initial, err := p.form.FromJSON(*row)
	if err != nil {
		return nil, fmt.Errorf("stored row does not fit the form: %w", err)
	}
	updated := row
	form := dynform.New(p.form, dynform.ModeUpdate, initial)
	err = pr.Run(ctx, form, func(ctx context.Context, values formschema.Values) error {
		if len(values) == 0 {
			return nil
		}
		r, err := p.rows.Update(ctx, id, values)
		if err == nil {
			updated = r
		}
		return err
	})
	return updated, err
}

func (p *page) remove(ctx context.Context, id uuid.UUID) error {
	if err := p.require(datatable.ActionDelete); err != nil {
		return err
	}
	return p.rows.Delete(ctx, id)
}
