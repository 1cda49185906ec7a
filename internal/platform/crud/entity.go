package crud

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Base carries the identity and timestamps shared by every stored row.
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (b *Base) base() *Base { return b }

// Stamp sets UpdatedAt, and CreatedAt when it is still zero.
func (b *Base) Stamp(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

type based interface {
	base() *Base
}

// Computed is implemented by rows exposing derived values to grids and
// filters, such as a low-stock flag.
type Computed interface {
	Computed(key string) (any, bool)
}

// baseOf returns the embedded Base of row.
func baseOf(row any) *Base {
	b, ok := row.(based)
	if !ok {
		panic(fmt.Sprintf("crud: %T does not embed crud.Base", row))
	}
	return b.base()
}

// IDOf returns the id of a row embedding Base.
func IDOf(row any) uuid.UUID {
	return baseOf(row).ID
}

// column maps a struct field onto a table column through its db tag. A
// readonly column is read from the source view but never written.
type column struct {
	name     string
	index    []int
	readonly bool
}

type meta struct {
	columns []column
	byName  map[string]column
}

func metaOf[T any]() *meta {
	t := reflect.TypeOf((*T)(nil)).Elem()
	m := &meta{byName: make(map[string]column)}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		c := column{name: tag, index: f.Index}
		for _, opt := range strings.Split(f.Tag.Get("crud"), ",") {
			if opt == "readonly" {
				c.readonly = true
			}
		}
		m.columns = append(m.columns, c)
		m.byName[tag] = c
	}
	return m
}

// names returns the column names, optionally leaving readonly ones out.
func (m *meta) names(writable bool) []string {
	out := make([]string, 0, len(m.columns))
	for _, c := range m.columns {
		if writable && c.readonly {
			continue
		}
		out = append(out, c.name)
	}
	return out
}

// values returns the field values of row for the named columns.
func (m *meta) values(row any, names []string) []interface{} {
	v := reflect.ValueOf(row).Elem()
	out := make([]interface{}, len(names))
	for i, n := range names {
		out[i] = v.FieldByIndex(m.byName[n].index).Interface()
	}
	return out
}

// get reads key from row: a computed value first, then a column. Pointers
// are dereferenced and nil pointers read as nil.
func (m *meta) get(row any, key string) any {
	if c, ok := row.(Computed); ok {
		if v, ok := c.Computed(key); ok {
			return v
		}
	}
	col, ok := m.byName[key]
	if !ok {
		return nil
	}
	f := reflect.ValueOf(row).Elem().FieldByIndex(col.index)
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		f = f.Elem()
	}
	return f.Interface()
}

// Accessor returns a datatable accessor reading rows of T by column name.
func Accessor[T any]() func(row *T, key string) any {
	m := metaOf[T]()
	return func(row *T, key string) any { return m.get(row, key) }
}

// equalValues compares a stored value with a lookup value. UUIDs compare
// with their string form and strings compare case-sensitively.
func equalValues(stored, want any) bool {
	if stored == nil || want == nil {
		return stored == nil && want == nil
	}
	if reflect.TypeOf(stored) == reflect.TypeOf(want) && reflect.TypeOf(stored).Comparable() {
		return stored == want
	}
	return fmt.Sprint(stored) == fmt.Sprint(want)
}
