package dialysis

import (
	"context"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/platform/crud"
)

type Repository = crud.Repository[Session]

type PatientReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type MachineReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*machine.Machine, error)
}

type StaffReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// NewMemRepo returns an in-memory session store that resolves patient,
// machine and nurse names the way dialysis_session_view does.
func NewMemRepo(patients PatientReader, machines MachineReader, staff StaffReader) *crud.MemRepo[Session] {
	return crud.NewMemRepo[Session](Definition.Name, Definition.Table, Definition.Filters).
		WithView(func(ctx context.Context, s *Session) {
			s.PatientName, s.PatientMRN = "", ""
			if p, err := patients.GetByID(ctx, s.PatientID); err == nil {
				s.PatientName, s.PatientMRN = p.FullName, p.MRN
			}
			s.MachineSerial = ""
			if m, err := machines.GetByID(ctx, s.MachineID); err == nil {
				s.MachineSerial = m.Serial
			}
			s.NurseName = nil
			if s.NurseID != nil {
				if u, err := staff.GetByID(ctx, *s.NurseID); err == nil {
					name := u.FullName
					s.NurseName = &name
				}
			}
		})
}
