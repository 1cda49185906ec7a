package slice

import (
	"context"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

func setPending(st map[Op]Status, op Op) {
	st[op] = Status{Loading: true}
}

func setRejected(st map[Op]Status, op Op, err error) {
	status := Status{Error: err.Error()}
	if ve, ok := formschema.AsValidationError(err); ok {
		status.Fields = ve.Fields
	}
	st[op] = status
}

// ClearError resets a rejected operation.
func (s *Slice[T]) ClearError(op Op) {
	s.update(func(st *State[T]) {
		if cur := st.Ops[op]; !cur.Loading {
			delete(st.Ops, op)
		}
	})
}

// Select marks the row shown in detail. A nil id clears the selection.
func (s *Slice[T]) Select(id *uuid.UUID) {
	s.update(func(st *State[T]) {
		if id == nil {
			st.Selected = nil
			return
		}
		v := *id
		st.Selected = &v
	})
}

// FetchList loads the page for q and filters. The page replaces IDs in
// server order. When a newer FetchList starts before this one finishes,
// this response is dropped and the newer one decides the state.
func (s *Slice[T]) FetchList(ctx context.Context, q datatable.Query, filters filterbar.Values) error {
	var seq uint64
	s.update(func(st *State[T]) {
		s.listSeq++
		seq = s.listSeq
		st.Query = q
		st.Filters = filters
		setPending(st.Ops, OpFetchList)
	})

	page, err := s.api.List(ctx, q, s.bar.Query(filters))

	s.mu.Lock()
	stale := seq != s.listSeq
	s.mu.Unlock()
	if stale {
		return nil
	}
	s.update(func(st *State[T]) {
		if seq != s.listSeq {
			return
		}
		if err != nil {
			setRejected(st.Ops, OpFetchList, err)
			return
		}
		st.IDs = st.IDs[:0]
		for _, row := range page.Rows {
			id := s.idOf(row)
			st.IDs = append(st.IDs, id)
			st.ByID[id] = row
		}
		st.Total = page.Total
		page.Rows = nil
		st.Page = page
		st.Ops[OpFetchList] = Status{}
	})
	return err
}

// Refresh repeats the last list fetch.
func (s *Slice[T]) Refresh(ctx context.Context) error {
	st := s.Snapshot()
	return s.FetchList(ctx, st.Query, st.Filters)
}

// FetchOne loads one row and selects it.
func (s *Slice[T]) FetchOne(ctx context.Context, id uuid.UUID) (*T, error) {
	s.update(func(st *State[T]) { setPending(st.Ops, OpFetchOne) })
	row, err := s.api.Get(ctx, id)
	s.update(func(st *State[T]) {
		if err != nil {
			setRejected(st.Ops, OpFetchOne, err)
			return
		}
		st.ByID[id] = row
		st.Selected = &id
		st.Ops[OpFetchOne] = Status{}
	})
	return row, err
}

// Create stores a new row and puts it first in the list.
func (s *Slice[T]) Create(ctx context.Context, values formschema.Values) (*T, error) {
	s.update(func(st *State[T]) { setPending(st.Ops, OpCreate) })
	row, err := s.api.Create(ctx, values)
	s.update(func(st *State[T]) {
		if err != nil {
			setRejected(st.Ops, OpCreate, err)
			return
		}
		id := s.idOf(row)
		st.ByID[id] = row
		st.IDs = append([]uuid.UUID{id}, st.IDs...)
		st.Total++
		st.Ops[OpCreate] = Status{}
	})
	return row, err
}

// Update replaces the row in place.
func (s *Slice[T]) Update(ctx context.Context, id uuid.UUID, values formschema.Values) (*T, error) {
	s.update(func(st *State[T]) { setPending(st.Ops, OpUpdate) })
	row, err := s.api.Update(ctx, id, values)
	s.update(func(st *State[T]) {
		if err != nil {
			setRejected(st.Ops, OpUpdate, err)
			return
		}
		st.ByID[id] = row
		st.Ops[OpUpdate] = Status{}
	})
	return row, err
}

// Delete removes the row from the list and the loaded rows.
func (s *Slice[T]) Delete(ctx context.Context, id uuid.UUID) error {
	s.update(func(st *State[T]) { setPending(st.Ops, OpDelete) })
	err := s.api.Delete(ctx, id)
	s.update(func(st *State[T]) {
		if err != nil {
			setRejected(st.Ops, OpDelete, err)
			return
		}
		delete(st.ByID, id)
		for i, cur := range st.IDs {
			if cur == id {
				st.IDs = append(st.IDs[:i], st.IDs[i+1:]...)
				break
			}
		}
		if st.Total > 0 {
			st.Total--
		}
		if st.Selected != nil && *st.Selected == id {
			st.Selected = nil
		}
		st.Ops[OpDelete] = Status{}
	})
	return err
}
