package shift

import (
	"context"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/domain/ward"
	"github.com/carecenter/dashboard/internal/platform/crud"
)

type Repository = crud.Repository[Shift]

type StaffReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type WardReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ward.Ward, error)
}

// NewMemRepo returns an in-memory shift store that resolves staff and ward
// names the way shift_view does.
func NewMemRepo(staff StaffReader, wards WardReader) *crud.MemRepo[Shift] {
	return crud.NewMemRepo[Shift](Definition.Name, Definition.Table, Definition.Filters).
		WithView(func(ctx context.Context, s *Shift) {
			s.StaffName = ""
			if u, err := staff.GetByID(ctx, s.StaffID); err == nil {
				s.StaffName = u.FullName
			}
			s.WardName = nil
			if s.WardID != nil {
				if w, err := wards.GetByID(ctx, *s.WardID); err == nil {
					name := w.Name
					s.WardName = &name
				}
			}
		})
}
