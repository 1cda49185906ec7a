package vehicle

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type Service struct {
	*crud.Resource[Vehicle]
	repo Repository
	tx   db.TxRunner
	log  zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, log zerolog.Logger) *Service {
	s := &Service{
		Resource: crud.NewResource[Vehicle](Definition, repo, log),
		repo:     repo,
		tx:       tx,
		log:      log.With().Str("component", "vehicles").Logger(),
	}
	s.Resource.BeforeSave = s.beforeSave
	s.Resource.BeforeDelete = s.beforeDelete
	return s
}

// NormalizePlate upper-cases a plate and collapses its spacing.
func NormalizePlate(p string) string {
	return strings.ToUpper(strings.Join(strings.Fields(p), " "))
}

func (s *Service) beforeSave(_ context.Context, row, prev *Vehicle) error {
	row.Plate = NormalizePlate(row.Plate)
	if prev != nil && row.MileageKm < prev.MileageKm {
		return formschema.FieldError("mileage_km", "cannot go below the recorded mileage")
	}
	return nil
}

func (s *Service) beforeDelete(_ context.Context, row *Vehicle) error {
	if row.Status == StatusOnTrip {
		return crud.Conflictf("vehicle %s is on a trip", row.Plate)
	}
	return nil
}

func (s *Service) update(ctx context.Context, id uuid.UUID, fn func(v *Vehicle) error) (*Vehicle, error) {
	var out *Vehicle
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := crud.Lock(ctx, s.repo, id); err != nil {
			return err
		}
		v, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Dispatch sends an available vehicle out with a driver.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID, driver string) (*Vehicle, error) {
	driver = strings.TrimSpace(driver)
	if driver == "" {
		return nil, formschema.FieldError("driver_name", "is required")
	}
	v, err := s.update(ctx, id, func(v *Vehicle) error {
		if v.Status != StatusAvailable {
			return crud.Conflictf("vehicle %s is %s", v.Plate, strings.ReplaceAll(v.Status, "_", " "))
		}
		v.Status = StatusOnTrip
		v.DriverName = &driver
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("plate", v.Plate).Str("driver", driver).Msg("vehicle dispatched")
	return v, nil
}

// Return brings a vehicle back from a trip with its odometer reading.
func (s *Service) Return(ctx context.Context, id uuid.UUID, mileage float64) (*Vehicle, error) {
	v, err := s.update(ctx, id, func(v *Vehicle) error {
		if v.Status != StatusOnTrip {
			return crud.Conflictf("vehicle %s is not on a trip", v.Plate)
		}
		if mileage < v.MileageKm {
			return formschema.FieldError("mileage_km", "cannot go below the recorded mileage")
		}
		v.Status = StatusAvailable
		v.MileageKm = mileage
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("plate", v.Plate).Float64("mileage_km", mileage).Msg("vehicle returned")
	return v, nil
}
