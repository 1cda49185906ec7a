package shift

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type Service struct {
	*crud.Resource[Shift]
	repo  Repository
	staff StaffReader
	wards WardReader
	tx    db.TxRunner
	log   zerolog.Logger
}

func NewService(repo Repository, staff StaffReader, wards WardReader, tx db.TxRunner, log zerolog.Logger) *Service {
	s := &Service{
		Resource: crud.NewResource[Shift](Definition, repo, log),
		repo:     repo,
		staff:    staff,
		wards:    wards,
		tx:       tx,
		log:      log.With().Str("component", "shifts").Logger(),
	}
	s.Resource.BeforeSave = s.beforeSave
	return s
}

// Create and Update run the overlap check and the write in one transaction.
func (s *Service) Create(ctx context.Context, values formschema.Values) (*Shift, error) {
	var out *Shift
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.Resource.Create(ctx, values)
		return err
	})
	return out, err
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, values formschema.Values) (*Shift, error) {
	var out *Shift
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.Resource.Update(ctx, id, values)
		return err
	})
	return out, err
}

func (s *Service) beforeSave(ctx context.Context, row, prev *Shift) error {
	if !row.EndsAt.After(row.StartsAt) {
		return formschema.FieldError("ends_at", "must be after the start")
	}
	if row.EndsAt.Sub(row.StartsAt) > MaxLength {
		return formschema.FieldError("ends_at", "a shift lasts at most 24 hours")
	}

	if prev == nil || row.StaffID != prev.StaffID {
		u, err := s.staff.GetByID(ctx, row.StaffID)
		if errors.Is(err, crud.ErrNotFound) {
			return formschema.FieldError("staff_id", "unknown user")
		}
		if err != nil {
			return err
		}
		if !u.Active {
			return formschema.FieldError("staff_id", u.Username+" is not active")
		}
	}
	if row.WardID != nil && (prev == nil || prev.WardID == nil || *prev.WardID != *row.WardID) {
		if _, err := s.wards.GetByID(ctx, *row.WardID); errors.Is(err, crud.ErrNotFound) {
			return formschema.FieldError("ward_id", "unknown ward")
		} else if err != nil {
			return err
		}
	}

	// Holding the staff row serializes shift writes for one person.
	if l, ok := s.staff.(crud.Locker); ok {
		if err := l.Lock(ctx, row.StaffID); err != nil {
			return err
		}
	}
	others, err := s.repo.FindBy(ctx, map[string]any{"staff_id": row.StaffID})
	if err != nil {
		return err
	}
	for _, o := range others {
		if o.ID != row.ID && row.Overlaps(o) {
			return crud.Conflictf("overlaps the %s shift from %s to %s", o.ShiftType,
				o.StartsAt.Format(formschema.DateTimeLayout), o.EndsAt.Format(formschema.DateTimeLayout))
		}
	}
	return nil
}

// OnDuty returns the shifts running at t.
func (s *Service) OnDuty(ctx context.Context, t time.Time) ([]*Shift, error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	rows, err := crud.ListAll[Shift](ctx, s.repo, crud.ListParams{
		Filters: filterbar.Values{"period": {From: day.Add(-MaxLength), To: day}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Shift, 0, len(rows))
	for _, r := range rows {
		if r.Covers(t) {
			out = append(out, r)
		}
	}
	return out, nil
}
