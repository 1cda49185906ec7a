package machine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// DeleteGuard vetoes deleting a machine that other records still use.
type DeleteGuard func(ctx context.Context, machineID uuid.UUID) error

type Service struct {
	*crud.Resource[Machine]
	repo   Repository
	guards []DeleteGuard
	log    zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	s := &Service{
		Resource: crud.NewResource[Machine](Definition, repo, log),
		repo:     repo,
		log:      log.With().Str("component", "machines").Logger(),
	}
	s.Resource.BeforeSave = s.beforeSave
	s.Resource.BeforeDelete = s.beforeDelete
	return s
}

func (s *Service) beforeSave(_ context.Context, row, prev *Machine) error {
	was := ""
	if prev != nil {
		was = prev.Status
	}
	if row.Status != was && (row.Status == StatusInUse || was == StatusInUse) {
		return formschema.FieldError("status", "in use is set by starting and ending dialysis sessions")
	}
	return nil
}

func (s *Service) AddDeleteGuard(g DeleteGuard) {
	s.guards = append(s.guards, g)
}

func (s *Service) beforeDelete(ctx context.Context, row *Machine) error {
	if row.Status == StatusInUse {
		return crud.Conflictf("machine %s is in use", row.Serial)
	}
	for _, g := range s.guards {
		if err := g(ctx, row.ID); err != nil {
			return err
		}
	}
	return nil
}

// Reserve marks an available machine as in use. It is meant to run inside
// the transaction that starts a session.
func (s *Service) Reserve(ctx context.Context, id uuid.UUID) (*Machine, error) {
	if err := crud.Lock(ctx, s.repo, id); err != nil {
		return nil, err
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusAvailable {
		return nil, crud.Conflictf("machine %s is %s", m.Serial, m.Status)
	}
	m.Status = StatusInUse
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("reserve machine: %w", err)
	}
	return m, nil
}

// Release returns an in-use machine to service and adds the hours it ran.
func (s *Service) Release(ctx context.Context, id uuid.UUID, hours float64) (*Machine, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusInUse {
		return m, nil
	}
	m.Status = StatusAvailable
	if hours > 0 {
		m.HoursUsed += hours
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("release machine: %w", err)
	}
	s.log.Debug().Str("machine_id", id.String()).Float64("hours_used", m.HoursUsed).Msg("machine released")
	return m, nil
}
