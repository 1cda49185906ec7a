package patient

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// DeleteGuard vetoes deleting a patient that other records still point at,
// such as an occupied bed or an open dialysis session.
type DeleteGuard func(ctx context.Context, patientID uuid.UUID) error

type Service struct {
	*crud.Resource[Patient]
	guards []DeleteGuard
	now    func() time.Time
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	s := &Service{
		Resource: crud.NewResource[Patient](Definition, repo, log),
		now:      time.Now,
	}
	s.Resource.BeforeSave = s.beforeSave
	s.Resource.BeforeDelete = s.beforeDelete
	return s
}

// AddDeleteGuard registers a check run before every delete.
func (s *Service) AddDeleteGuard(g DeleteGuard) {
	s.guards = append(s.guards, g)
}

func (s *Service) beforeSave(_ context.Context, row, _ *Patient) error {
	row.MRN = strings.ToUpper(row.MRN)
	if row.BirthDate != nil && row.BirthDate.After(s.now()) {
		return formschema.FieldError("birth_date", "must not be in the future")
	}
	return nil
}

func (s *Service) beforeDelete(ctx context.Context, row *Patient) error {
	for _, g := range s.guards {
		if err := g(ctx, row.ID); err != nil {
			return err
		}
	}
	return nil
}
