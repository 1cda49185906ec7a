// Package filterbar declares the filters shown above a resource list and
// turns submitted filter values into SQL conditions or in-memory predicates.
package filterbar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Kind is the input kind of a filter.
type Kind string

const (
	KindText      Kind = "text"
	KindSelect    Kind = "select"
	KindDate      Kind = "date"
	KindDateRange Kind = "daterange"
	KindBoolean   Kind = "boolean"
)

// Op is the comparison a text or select filter applies. OpAny matches a
// select value against the elements of an array column.
type Op string

const (
	OpContains Op = "contains"
	OpEquals   Op = "eq"
	OpAny      Op = "any"
)

// Definition declares one filter. Column is the SQL expression the filter
// applies to and defaults to Key.
type Definition struct {
	Key     string              `json:"key" yaml:"key"`
	Label   string              `json:"label" yaml:"label"`
	Kind    Kind                `json:"kind" yaml:"kind"`
	Options []formschema.Option `json:"options,omitempty" yaml:"options"`
	Column  string              `json:"-" yaml:"column"`
	Op      Op                  `json:"op,omitempty" yaml:"op"`
}

func (d Definition) column() string {
	if d.Column != "" {
		return d.Column
	}
	return d.Key
}

func (d Definition) hasOption(v string) bool {
	for _, o := range d.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// Value is a parsed filter value. Text carries text and select values, Bool
// boolean ones, Day a date and From/To a date range. A zero bound is open.
type Value struct {
	Text string
	Bool bool
	Day  time.Time
	From time.Time
	To   time.Time
}

// Values maps filter keys to parsed values. Filters left empty are absent.
type Values map[string]Value

// Bar is the ordered set of filters of one list page.
type Bar struct {
	Filters []Definition `json:"filters"`
}

// New returns a bar over defs.
func New(defs ...Definition) Bar {
	return Bar{Filters: defs}
}

// Filter looks a definition up by key.
func (b Bar) Filter(key string) (Definition, bool) {
	for _, d := range b.Filters {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Parse reads filter values from query parameters. Empty parameters are
// ignored. Invalid values are reported per filter key as a
// *formschema.ValidationError.
func (b Bar) Parse(q url.Values) (Values, error) {
	out := make(Values)
	verr := &formschema.ValidationError{}
	for _, d := range b.Filters {
		switch d.Kind {
		case KindDateRange:
			from, fromErr := parseDay(q.Get(d.Key + "_from"))
			to, toErr := parseDay(q.Get(d.Key + "_to"))
			if fromErr != nil {
				verr.Add(d.Key+"_from", fromErr.Error())
			}
			if toErr != nil {
				verr.Add(d.Key+"_to", toErr.Error())
			}
			if fromErr != nil || toErr != nil || (from.IsZero() && to.IsZero()) {
				continue
			}
			if !from.IsZero() && !to.IsZero() && to.Before(from) {
				verr.Add(d.Key, "start must not be after end")
				continue
			}
			out[d.Key] = Value{From: from, To: to}
			continue
		}

		raw := strings.TrimSpace(q.Get(d.Key))
		if raw == "" {
			continue
		}
		switch d.Kind {
		case KindSelect:
			if !d.hasOption(raw) {
				verr.Add(d.Key, "is not a valid choice")
				continue
			}
			out[d.Key] = Value{Text: raw}
		case KindDate:
			day, err := parseDay(raw)
			if err != nil {
				verr.Add(d.Key, err.Error())
				continue
			}
			out[d.Key] = Value{Day: day}
		case KindBoolean:
			bv, ok := parseBool(raw)
			if !ok {
				verr.Add(d.Key, "must be true or false")
				continue
			}
			out[d.Key] = Value{Bool: bv}
		default:
			out[d.Key] = Value{Text: raw}
		}
	}
	return out, verr.OrNil()
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(formschema.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a date (YYYY-MM-DD)")
	}
	return t, nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

// SQL returns the conditions for values, joined with AND, and their
// positional arguments numbered from argStart. Text filters match with
// ILIKE, select and boolean filters with equality, date filters match the
// calendar day and date ranges are inclusive on both ends.
func (b Bar) SQL(values Values, argStart int) (string, []interface{}) {
	var conds []string
	var args []interface{}
	n := argStart
	next := func(v interface{}) string {
		args = append(args, v)
		s := fmt.Sprintf("$%d", n)
		n++
		return s
	}
	for _, d := range b.Filters {
		v, ok := values[d.Key]
		if !ok {
			continue
		}
		col := d.column()
		switch d.Kind {
		case KindText:
			if d.Op == OpEquals {
				conds = append(conds, fmt.Sprintf("%s = %s", col, next(v.Text)))
			} else {
				conds = append(conds, fmt.Sprintf("CAST(%s AS TEXT) ILIKE %s", col, next("%"+datatable.EscapeLike(v.Text)+"%")))
			}
		case KindSelect:
			if d.Op == OpAny {
				conds = append(conds, fmt.Sprintf("%s = ANY(%s)", next(v.Text), col))
			} else {
				conds = append(conds, fmt.Sprintf("CAST(%s AS TEXT) = %s", col, next(v.Text)))
			}
		case KindBoolean:
			conds = append(conds, fmt.Sprintf("(%s) = %s", col, next(v.Bool)))
		case KindDate:
			conds = append(conds, fmt.Sprintf("%s >= %s AND %s < %s", col, next(v.Day), col, next(v.Day.AddDate(0, 0, 1))))
		case KindDateRange:
			if !v.From.IsZero() {
				conds = append(conds, fmt.Sprintf("%s >= %s", col, next(v.From)))
			}
			if !v.To.IsZero() {
				conds = append(conds, fmt.Sprintf("%s < %s", col, next(v.To.AddDate(0, 0, 1))))
			}
		}
	}
	return strings.Join(conds, " AND "), args
}

// Match reports whether row satisfies every filter in values, with the same
// semantics as SQL. get reads a filter key from the row.
func Match[T any](b Bar, values Values, row T, get datatable.Accessor[T]) bool {
	for _, d := range b.Filters {
		v, ok := values[d.Key]
		if !ok {
			continue
		}
		if !matchOne(d, v, get(row, d.Key)) {
			return false
		}
	}
	return true
}

// Filter returns the rows matching values.
func Filter[T any](b Bar, values Values, rows []T, get datatable.Accessor[T]) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if Match(b, values, r, get) {
			out = append(out, r)
		}
	}
	return out
}

func matchOne(d Definition, v Value, cell any) bool {
	switch d.Kind {
	case KindText:
		s := cellText(cell)
		if d.Op == OpEquals {
			return s == v.Text
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(v.Text))
	case KindSelect:
		if list, ok := cell.([]string); ok {
			for _, s := range list {
				if s == v.Text {
					return true
				}
			}
			return false
		}
		return cellText(cell) == v.Text
	case KindBoolean:
		bv, ok := cell.(bool)
		return ok && bv == v.Bool
	case KindDate:
		t, ok := cellTime(cell)
		return ok && !t.Before(v.Day) && t.Before(v.Day.AddDate(0, 0, 1))
	case KindDateRange:
		t, ok := cellTime(cell)
		if !ok {
			return false
		}
		if !v.From.IsZero() && t.Before(v.From) {
			return false
		}
		if !v.To.IsZero() && !t.Before(v.To.AddDate(0, 0, 1)) {
			return false
		}
		return true
	}
	return true
}

func cellText(cell any) string {
	switch c := cell.(type) {
	case nil:
		return ""
	case string:
		return c
	case *string:
		if c == nil {
			return ""
		}
		return *c
	case fmt.Stringer:
		return c.String()
	}
	return fmt.Sprint(cell)
}

func cellTime(cell any) (time.Time, bool) {
	switch c := cell.(type) {
	case time.Time:
		return c, !c.IsZero()
	case *time.Time:
		if c == nil {
			return time.Time{}, false
		}
		return *c, !c.IsZero()
	case string:
		if t, err := time.Parse(time.RFC3339, c); err == nil {
			return t, true
		}
		if t, err := time.Parse(formschema.DateLayout, c); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Query encodes values back into query parameters understood by Parse.
func (b Bar) Query(values Values) url.Values {
	q := url.Values{}
	for _, d := range b.Filters {
		v, ok := values[d.Key]
		if !ok {
			continue
		}
		switch d.Kind {
		case KindBoolean:
			q.Set(d.Key, fmt.Sprint(v.Bool))
		case KindDate:
			q.Set(d.Key, v.Day.Format(formschema.DateLayout))
		case KindDateRange:
			if !v.From.IsZero() {
				q.Set(d.Key+"_from", v.From.Format(formschema.DateLayout))
			}
			if !v.To.IsZero() {
				q.Set(d.Key+"_to", v.To.Format(formschema.DateLayout))
			}
		default:
			q.Set(d.Key, v.Text)
		}
	}
	return q
}

// Describe returns the definitions for UI clients.
func (b Bar) Describe() []Definition {
	out := make([]Definition, len(b.Filters))
	copy(out, b.Filters)
	return out
}

// Params lists every query parameter name the bar reads.
func (b Bar) Params() []string {
	var out []string
	for _, d := range b.Filters {
		if d.Kind == KindDateRange {
			out = append(out, d.Key+"_from", d.Key+"_to")
			continue
		}
		out = append(out, d.Key)
	}
	return out
}
