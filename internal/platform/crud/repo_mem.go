package crud

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
)

// MemRepo is an in-memory Repository used for the memory storage mode and
// in tests. Rows are copied on the way in and out.
type MemRepo[T any] struct {
	mu      sync.RWMutex
	rows    map[uuid.UUID]*T
	order   []uuid.UUID
	meta    *meta
	table   datatable.Table
	bar     filterbar.Bar
	unique  [][]string
	view    func(ctx context.Context, row *T)
	now     func() time.Time
	resName string
}

// NewMemRepo returns an empty store evaluating lists against table and bar.
func NewMemRepo[T any](name string, table datatable.Table, bar filterbar.Bar) *MemRepo[T] {
	return &MemRepo[T]{
		rows:    make(map[uuid.UUID]*T),
		meta:    metaOf[T](),
		table:   table,
		bar:     bar,
		now:     func() time.Time { return time.Now().UTC() },
		resName: name,
	}
}

// Unique declares a set of columns whose combined values must be unique.
func (r *MemRepo[T]) Unique(cols ...string) *MemRepo[T] {
	r.unique = append(r.unique, cols)
	return r
}

// WithView sets a function filling readonly columns on every row read, the
// counterpart of the SQL view used by PGRepo.
func (r *MemRepo[T]) WithView(fn func(ctx context.Context, row *T)) *MemRepo[T] {
	r.view = fn
	return r
}

func (r *MemRepo[T]) read(ctx context.Context, row *T) *T {
	cp := *row
	if r.view != nil {
		r.view(ctx, &cp)
	}
	return &cp
}

func (r *MemRepo[T]) checkUnique(row *T, self uuid.UUID) error {
	for _, cols := range r.unique {
		for id, other := range r.rows {
			if id == self {
				continue
			}
			same := true
			for _, c := range cols {
				if !equalValues(r.meta.get(row, c), r.meta.get(other, c)) {
					same = false
					break
				}
			}
			if same {
				vals := make([]string, len(cols))
				for i, c := range cols {
					vals[i] = fmt.Sprint(r.meta.get(row, c))
				}
				return Conflictf("Key (%s)=(%s) already exists.", strings.Join(cols, ", "), strings.Join(vals, ", "))
			}
		}
	}
	return nil
}

func (r *MemRepo[T]) Create(ctx context.Context, row *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := baseOf(row)
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, exists := r.rows[b.ID]; exists {
		return Conflictf("Key (id)=(%s) already exists.", b.ID)
	}
	if err := r.checkUnique(row, b.ID); err != nil {
		return err
	}
	b.Stamp(r.now())
	cp := *row
	r.rows[b.ID] = &cp
	r.order = append(r.order, b.ID)
	if r.view != nil {
		r.view(ctx, row)
	}
	return nil
}

func (r *MemRepo[T]) GetByID(ctx context.Context, id uuid.UUID) (*T, error) {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.read(ctx, row), nil
}

func (r *MemRepo[T]) Update(ctx context.Context, row *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := baseOf(row)
	prev, ok := r.rows[b.ID]
	if !ok {
		return ErrNotFound
	}
	if err := r.checkUnique(row, b.ID); err != nil {
		return err
	}
	// created_at is not writable
	b.CreatedAt = baseOf(prev).CreatedAt
	b.Stamp(r.now())
	cp := *row
	r.rows[b.ID] = &cp
	if r.view != nil {
		r.view(ctx, row)
	}
	return nil
}

func (r *MemRepo[T]) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(r.rows, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// snapshot returns copies of every row matching where, in insertion order.
func (r *MemRepo[T]) snapshot(ctx context.Context, where map[string]any) ([]*T, error) {
	for k := range where {
		if _, ok := r.meta.byName[k]; !ok {
			return nil, fmt.Errorf("%s: unknown column %q", r.resName, k)
		}
	}
	r.mu.RLock()
	rows := make([]*T, 0, len(r.order))
	for _, id := range r.order {
		rows = append(rows, r.read(ctx, r.rows[id]))
	}
	r.mu.RUnlock()

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := rows[:0]
	for _, row := range rows {
		match := true
		for _, k := range keys {
			if !equalValues(r.meta.get(row, k), where[k]) {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemRepo[T]) get(row *T, key string) any { return r.meta.get(row, key) }

// filterGet reads the value a filter applies to: its Column when that names
// a stored column, the filter key otherwise.
func (r *MemRepo[T]) filterGet(row *T, key string) any {
	if d, ok := r.bar.Filter(key); ok && d.Column != "" {
		if _, known := r.meta.byName[d.Column]; known {
			return r.meta.get(row, d.Column)
		}
	}
	return r.meta.get(row, key)
}

func (r *MemRepo[T]) matching(ctx context.Context, p ListParams) ([]*T, error) {
	rows, err := r.snapshot(ctx, p.Where)
	if err != nil {
		return nil, err
	}
	rows = filterbar.Filter(r.bar, p.Filters, rows, r.filterGet)
	return datatable.Search(r.table, rows, p.Query.Search, r.get), nil
}

func (r *MemRepo[T]) List(ctx context.Context, p ListParams) ([]*T, int, error) {
	rows, err := r.snapshot(ctx, p.Where)
	if err != nil {
		return nil, 0, err
	}
	rows = filterbar.Filter(r.bar, p.Filters, rows, r.filterGet)
	page := datatable.Apply(r.table, rows, p.Query, r.get)
	return page.Rows, page.Total, nil
}

func (r *MemRepo[T]) FindBy(ctx context.Context, where map[string]any) ([]*T, error) {
	return r.snapshot(ctx, where)
}

func (r *MemRepo[T]) Count(ctx context.Context, p ListParams) (int, error) {
	rows, err := r.matching(ctx, p)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
