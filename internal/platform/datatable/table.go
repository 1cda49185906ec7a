// Package datatable describes sortable, searchable, paginated grids and
// evaluates queries against them, either over an in-memory slice (client
// paging) or by emitting SQL fragments (server paging).
package datatable

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/carecenter/dashboard/pkg/pagination"
)

// Mode selects where paging happens.
type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
)

// Action is a per-row operation offered by the grid.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// SortDir is the sort direction.
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// RowAction grants an action to a set of roles. No roles means everyone.
type RowAction struct {
	Action Action   `json:"action"`
	Label  string   `json:"label,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// Column is one grid column. Key names the row field; Expr is the SQL
// expression used for sorting and searching and defaults to Key.
type Column struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Sortable   bool   `json:"sortable,omitempty"`
	Searchable bool   `json:"searchable,omitempty"`
	Format     string `json:"format,omitempty"`
	Width      int    `json:"width,omitempty"`
	Hidden     bool   `json:"hidden,omitempty"`
	Expr       string `json:"-"`
}

func (c Column) expr() string {
	if c.Expr != "" {
		return c.Expr
	}
	return c.Key
}

// Table declares a grid.
type Table struct {
	Name            string      `json:"name"`
	Columns         []Column    `json:"columns"`
	DefaultSort     string      `json:"default_sort"`
	DefaultDir      SortDir     `json:"default_dir"`
	PageSizes       []int       `json:"page_sizes,omitempty"`
	DefaultPageSize int         `json:"default_page_size"`
	Actions         []RowAction `json:"actions,omitempty"`
	Mode            Mode        `json:"mode"`
}

// Column looks a column up by key.
func (t Table) Column(key string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// ActionsFor returns the row actions available to a user holding roles.
// Admins get every declared action.
func (t Table) ActionsFor(roles []string) []Action {
	out := make([]Action, 0, len(t.Actions))
	for _, ra := range t.Actions {
		if len(ra.Roles) == 0 || hasAnyRole(roles, ra.Roles) {
			out = append(out, ra.Action)
		}
	}
	return out
}

func hasAnyRole(have, want []string) bool {
	for _, h := range have {
		if h == "admin" {
			return true
		}
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Query is a grid request.
type Query struct {
	Search   string  `json:"search,omitempty"`
	SortBy   string  `json:"sort_by,omitempty"`
	SortDir  SortDir `json:"sort_dir,omitempty"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// ParseQuery reads q (or search), sort (a "-" prefix sorts descending) or
// sort_by + sort_dir, page and page_size, then normalizes the result.
func (t Table) ParseQuery(v url.Values) Query {
	q := Query{Search: v.Get("q")}
	if q.Search == "" {
		q.Search = v.Get("search")
	}
	if s := v.Get("sort"); s != "" {
		q.SortBy = strings.TrimPrefix(s, "-")
		q.SortDir = Asc
		if strings.HasPrefix(s, "-") {
			q.SortDir = Desc
		}
	} else {
		q.SortBy = v.Get("sort_by")
		q.SortDir = SortDir(strings.ToLower(v.Get("sort_dir")))
	}
	q.Page, _ = strconv.Atoi(v.Get("page"))
	q.PageSize, _ = strconv.Atoi(v.Get("page_size"))
	return t.Normalize(q)
}

// Normalize replaces unknown or unsortable sort keys with the default sort,
// invalid directions with the default direction, page < 1 with 1 and page
// sizes outside the allowed list with the default size.
func (t Table) Normalize(q Query) Query {
	q.Search = strings.TrimSpace(q.Search)
	if c, ok := t.Column(q.SortBy); !ok || !c.Sortable {
		q.SortBy = t.DefaultSort
		q.SortDir = ""
	}
	if q.SortDir != Asc && q.SortDir != Desc {
		q.SortDir = t.DefaultDir
		if q.SortDir == "" {
			q.SortDir = Asc
		}
	}
	if q.Page < 1 {
		q.Page = 1
	}
	def := t.DefaultPageSize
	if def <= 0 {
		def = pagination.DefaultPageSize
	}
	if len(t.PageSizes) > 0 {
		allowed := false
		for _, s := range t.PageSizes {
			if s == q.PageSize {
				allowed = true
				break
			}
		}
		if !allowed {
			q.PageSize = def
		}
	} else if q.PageSize <= 0 {
		q.PageSize = def
	}
	p := pagination.New(q.Page, q.PageSize)
	q.PageSize = p.PageSize
	return q
}

// Params returns the pagination part of the query.
func (q Query) Params() pagination.Params {
	return pagination.New(q.Page, q.PageSize)
}

// Values encodes the query as URL parameters understood by ParseQuery.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.SortBy != "" {
		v.Set("sort_by", q.SortBy)
		if q.SortDir != "" {
			v.Set("sort_dir", string(q.SortDir))
		}
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

// Page is one page of grid rows with its navigation state.
type Page[T any] struct {
	Rows      []T      `json:"data"`
	Total     int      `json:"total"`
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
	PageCount int      `json:"page_count"`
	HasNext   bool     `json:"has_next"`
	HasPrev   bool     `json:"has_prev"`
	SortBy    string   `json:"sort_by,omitempty"`
	SortDir   SortDir  `json:"sort_dir,omitempty"`
	Search    string   `json:"search,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
}

// NewPage wraps rows that were already paged (server mode). The query page
// is clamped to the last page.
func NewPage[T any](rows []T, total int, q Query) Page[T] {
	p := q.Params().Clamp(total)
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{
		Rows:      rows,
		Total:     total,
		Page:      p.Page,
		PageSize:  p.PageSize,
		PageCount: p.PageCount(total),
		HasNext:   p.HasNext(total),
		HasPrev:   p.HasPrevious(),
		SortBy:    q.SortBy,
		SortDir:   q.SortDir,
		Search:    q.Search,
	}
}
