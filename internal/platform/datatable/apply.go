package datatable

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Accessor reads the value of a column key from a row.
type Accessor[T any] func(row T, key string) any

// Apply evaluates q over rows in memory: case-insensitive substring search
// across searchable columns, a stable sort, then the page slice. Empty
// values sort last in either direction. Rows is not modified.
func Apply[T any](t Table, rows []T, q Query, get Accessor[T]) Page[T] {
	q = t.Normalize(q)
	matched := Search(t, rows, q.Search, get)
	Sort(t, matched, q.SortBy, q.SortDir, get)

	total := len(matched)
	p := q.Params().Clamp(total)
	start, end := p.Bounds(total)
	q.Page = p.Page
	return NewPage(matched[start:end], total, q)
}

// Search returns the rows where any searchable column contains term.
func Search[T any](t Table, rows []T, term string, get Accessor[T]) []T {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]T, 0, len(rows))
	if term == "" {
		return append(out, rows...)
	}
	for _, row := range rows {
		for _, c := range t.Columns {
			if !c.Searchable {
				continue
			}
			if strings.Contains(strings.ToLower(FormatCell(c, get(row, c.Key))), term) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// Sort orders rows in place by key. It is a no-op when key is empty.
func Sort[T any](t Table, rows []T, key string, dir SortDir, get Accessor[T]) {
	if key == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := get(rows[i], key), get(rows[j], key)
		ae, be := emptyValue(a), emptyValue(b)
		switch {
		case ae && be:
			return false
		case ae:
			return false
		case be:
			return true
		}
		c := Compare(a, b)
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case time.Time:
		return t.IsZero()
	}
	return false
}

// Compare orders two cell values: numbers numerically, times
// chronologically, booleans false before true and anything else as
// case-insensitive text.
func Compare(a, b any) int {
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(strings.ToLower(fmt.Sprint(a)), strings.ToLower(fmt.Sprint(b)))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// FormatCell renders a cell for display and for search matching.
func FormatCell(c Column, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if c.Format == "date" || c.Format == "datetime" {
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return FormatCell(c, parsed)
			}
		}
		return t
	case time.Time:
		if t.IsZero() {
			return ""
		}
		if c.Format == "date" {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case []string:
		return strings.Join(t, ", ")
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
