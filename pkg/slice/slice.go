// Package slice keeps the client-side state of one resource: the current
// list page, loaded rows and the status of every operation. Each operation
// is a thunk that moves its status through pending and then fulfilled or
// rejected, and notifies subscribers after every change.
package slice

import (
	"context"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type Op string

const (
	OpFetchList Op = "fetchList"
	OpFetchOne  Op = "fetchOne"
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
)

// Status is the state of one operation. Fields holds per-field messages
// of a rejected create or update.
type Status struct {
	Loading bool                `json:"loading"`
	Error   string              `json:"error,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// State is a normalized view of a resource. IDs lists the current page in
// server order; ByID holds every loaded row.
type State[T any] struct {
	IDs      []uuid.UUID
	ByID     map[uuid.UUID]*T
	Selected *uuid.UUID
	Total    int
	Page     datatable.Page[*T]
	Query    datatable.Query
	Filters  filterbar.Values
	Ops      map[Op]Status
}

// Rows returns the rows of the current page in order.
func (s State[T]) Rows() []*T {
	out := make([]*T, 0, len(s.IDs))
	for _, id := range s.IDs {
		if row, ok := s.ByID[id]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Current returns the selected row, if loaded.
func (s State[T]) Current() (*T, bool) {
	if s.Selected == nil {
		return nil, false
	}
	row, ok := s.ByID[*s.Selected]
	return row, ok
}

// API is the remote surface a slice drives; *client.Resource[T] is one.
type API[T any] interface {
	List(ctx context.Context, q datatable.Query, filters url.Values) (datatable.Page[*T], error)
	Get(ctx context.Context, id uuid.UUID) (*T, error)
	Create(ctx context.Context, values formschema.Values) (*T, error)
	Update(ctx context.Context, id uuid.UUID, values formschema.Values) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Slice[T any] struct {
	api  API[T]
	bar  filterbar.Bar
	idOf func(*T) uuid.UUID

	mu      sync.Mutex
	state   State[T]
	listSeq uint64
	subs    map[int]func(State[T])
	nextSub int
}

// New returns an empty slice. bar encodes filter values for list calls
// and idOf reads a row's id.
func New[T any](api API[T], bar filterbar.Bar, idOf func(*T) uuid.UUID) *Slice[T] {
	return &Slice[T]{
		api:  api,
		bar:  bar,
		idOf: idOf,
		state: State[T]{
			ByID:    make(map[uuid.UUID]*T),
			Filters: filterbar.Values{},
			Ops:     make(map[Op]Status),
		},
		subs: make(map[int]func(State[T])),
	}
}

// Subscribe registers fn to receive a snapshot after every change and
// returns a function removing it.
func (s *Slice[T]) Subscribe(fn func(State[T])) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the state that later changes do not affect.
// Rows are shared.
func (s *Slice[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Slice[T]) snapshot() State[T] {
	out := s.state
	out.IDs = append([]uuid.UUID(nil), s.state.IDs...)
	out.ByID = make(map[uuid.UUID]*T, len(s.state.ByID))
	for k, v := range s.state.ByID {
		out.ByID[k] = v
	}
	out.Filters = make(filterbar.Values, len(s.state.Filters))
	for k, v := range s.state.Filters {
		out.Filters[k] = v
	}
	out.Ops = make(map[Op]Status, len(s.state.Ops))
	for k, v := range s.state.Ops {
		out.Ops[k] = v
	}
	if s.state.Selected != nil {
		id := *s.state.Selected
		out.Selected = &id
	}
	return out
}

// update applies fn under the lock and then notifies subscribers.
func (s *Slice[T]) update(fn func(st *State[T])) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.snapshot()
	subs := make([]func(State[T]), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub(snap)
	}
}
