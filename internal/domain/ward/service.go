package ward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Occupancy summarizes the beds of one ward.
type Occupancy struct {
	WardID      uuid.UUID `json:"ward_id"`
	Capacity    int       `json:"capacity"`
	Beds        int       `json:"beds"`
	Available   int       `json:"available"`
	Occupied    int       `json:"occupied"`
	Maintenance int       `json:"maintenance"`
}

type Service struct {
	Wards *crud.Resource[Ward]
	Beds  *crud.Resource[Bed]

	wards    WardRepository
	beds     BedRepository
	patients PatientReader
	tx       db.TxRunner
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(wards WardRepository, beds BedRepository, patients PatientReader, tx db.TxRunner, log zerolog.Logger) *Service {
	s := &Service{
		Wards:    crud.NewResource[Ward](Definition, wards, log),
		Beds:     crud.NewResource[Bed](BedDefinition, beds, log),
		wards:    wards,
		beds:     beds,
		patients: patients,
		tx:       tx,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "wards").Logger(),
	}
	s.Wards.BeforeSave = s.beforeSaveWard
	s.Wards.BeforeDelete = s.beforeDeleteWard
	s.Beds.BeforeSave = s.beforeSaveBed
	s.Beds.BeforeDelete = s.beforeDeleteBed
	return s
}

// WardService serves the ward grid. Deleting a ward removes its beds.
func (s *Service) WardService() crud.Service[Ward] { return wardService{s} }

type wardService struct{ *Service }

func (w wardService) Create(ctx context.Context, v formschema.Values) (*Ward, error) {
	return w.Wards.Create(ctx, v)
}

func (w wardService) Get(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return w.Wards.Get(ctx, id)
}

func (w wardService) Update(ctx context.Context, id uuid.UUID, v formschema.Values) (*Ward, error) {
	return w.Wards.Update(ctx, id, v)
}

func (w wardService) Delete(ctx context.Context, id uuid.UUID) error {
	return w.DeleteWard(ctx, id)
}

func (w wardService) List(ctx context.Context, p crud.ListParams) ([]*Ward, int, error) {
	return w.Wards.List(ctx, p)
}

func (s *Service) bedsOf(ctx context.Context, wardID uuid.UUID) ([]*Bed, error) {
	return s.beds.FindBy(ctx, map[string]any{"ward_id": wardID})
}

func (s *Service) beforeSaveWard(ctx context.Context, row, prev *Ward) error {
	if prev == nil || row.Capacity >= prev.Capacity {
		return nil
	}
	beds, err := s.bedsOf(ctx, row.ID)
	if err != nil {
		return err
	}
	if row.Capacity < len(beds) {
		return formschema.FieldError("capacity", fmt.Sprintf("must be at least the %d beds already in the ward", len(beds)))
	}
	return nil
}

func (s *Service) beforeDeleteWard(ctx context.Context, row *Ward) error {
	beds, err := s.bedsOf(ctx, row.ID)
	if err != nil {
		return err
	}
	for _, b := range beds {
		if b.Status == BedOccupied {
			return crud.Conflictf("ward %s has occupied beds", row.Name)
		}
	}
	return nil
}

// DeleteWard removes a ward and its beds. A ward with an occupied bed cannot
// be deleted.
func (s *Service) DeleteWard(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		w, err := s.wards.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.Wards.BeforeDelete(ctx, w); err != nil {
			return err
		}
		beds, err := s.bedsOf(ctx, id)
		if err != nil {
			return err
		}
		for _, b := range beds {
			if err := s.beds.Delete(ctx, b.ID); err != nil && !errors.Is(err, crud.ErrNotFound) {
				return fmt.Errorf("delete bed %s: %w", b.Number, err)
			}
		}
		if err := s.wards.Delete(ctx, id); err != nil {
			return err
		}
		s.log.Info().Str("ward_id", id.String()).Int("beds", len(beds)).Msg("ward deleted")
		return nil
	})
}

func (s *Service) beforeSaveBed(ctx context.Context, row, prev *Bed) error {
	w, err := s.wards.GetByID(ctx, row.WardID)
	if errors.Is(err, crud.ErrNotFound) {
		return formschema.FieldError("ward_id", "unknown ward")
	}
	if err != nil {
		return err
	}

	was := ""
	if prev != nil {
		was = prev.Status
	}
	if row.Status != was && (row.Status == BedOccupied || was == BedOccupied) {
		return formschema.FieldError("status", "occupied is set by assigning and releasing patients")
	}

	if prev == nil {
		beds, err := s.bedsOf(ctx, w.ID)
		if err != nil {
			return err
		}
		if len(beds) >= w.Capacity {
			return crud.Conflictf("ward %s is full (capacity %d)", w.Name, w.Capacity)
		}
	}
	return nil
}

func (s *Service) beforeDeleteBed(_ context.Context, row *Bed) error {
	if row.Status == BedOccupied {
		return crud.Conflictf("bed %s is occupied", row.Number)
	}
	return nil
}

// Assign places a patient in an available bed. The patient must be active
// and not already in another bed.
func (s *Service) Assign(ctx context.Context, bedID, patientID uuid.UUID) (*Bed, error) {
	var out *Bed
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := crud.Lock(ctx, s.beds, bedID); err != nil {
			return err
		}
		b, err := s.beds.GetByID(ctx, bedID)
		if err != nil {
			return err
		}
		if b.Status != BedAvailable {
			return crud.Conflictf("bed %s is %s", b.Number, b.Status)
		}
		p, err := s.patients.GetByID(ctx, patientID)
		if errors.Is(err, crud.ErrNotFound) {
			return formschema.FieldError("patient_id", "unknown patient")
		}
		if err != nil {
			return err
		}
		if !p.Admittable() {
			return crud.Conflictf("patient %s is %s", p.MRN, p.Status)
		}
		if err := s.PatientGuard(ctx, patientID); err != nil {
			return err
		}

		now := s.now()
		b.PatientID = &patientID
		b.AssignedAt = &now
		b.Status = BedOccupied
		if err := s.beds.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("bed_id", bedID.String()).Str("patient_id", patientID.String()).Msg("patient assigned to bed")
	return out, nil
}

// Release frees an occupied bed.
func (s *Service) Release(ctx context.Context, bedID uuid.UUID) (*Bed, error) {
	var out *Bed
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := crud.Lock(ctx, s.beds, bedID); err != nil {
			return err
		}
		b, err := s.beds.GetByID(ctx, bedID)
		if err != nil {
			return err
		}
		if b.Status != BedOccupied {
			return crud.Conflictf("bed %s is not occupied", b.Number)
		}
		b.PatientID = nil
		b.AssignedAt = nil
		b.Status = BedAvailable
		if err := s.beds.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("bed_id", bedID.String()).Msg("bed released")
	return out, nil
}

// PatientGuard fails while the patient occupies a bed. It doubles as the
// patient delete guard.
func (s *Service) PatientGuard(ctx context.Context, patientID uuid.UUID) error {
	beds, err := s.beds.FindBy(ctx, map[string]any{"patient_id": patientID})
	if err != nil {
		return err
	}
	if len(beds) > 0 {
		return crud.Conflictf("patient already occupies bed %s in ward %s", beds[0].Number, beds[0].WardName)
	}
	return nil
}

// Occupancy counts the beds of a ward by status.
func (s *Service) Occupancy(ctx context.Context, wardID uuid.UUID) (Occupancy, error) {
	w, err := s.wards.GetByID(ctx, wardID)
	if err != nil {
		return Occupancy{}, err
	}
	beds, err := s.bedsOf(ctx, wardID)
	if err != nil {
		return Occupancy{}, err
	}
	o := Occupancy{WardID: wardID, Capacity: w.Capacity, Beds: len(beds)}
	for _, b := range beds {
		switch b.Status {
		case BedAvailable:
			o.Available++
		case BedOccupied:
			o.Occupied++
		case BedMaintenance:
			o.Maintenance++
		}
	}
	return o, nil
}
