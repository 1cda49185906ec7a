package ward

import (
	"context"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/platform/crud"
)

type WardRepository = crud.Repository[Ward]

type BedRepository = crud.Repository[Bed]

// PatientReader looks patients up for bed assignment.
type PatientReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

func NewWardMemRepo() *crud.MemRepo[Ward] {
	return crud.NewMemRepo[Ward](Definition.Name, Definition.Table, Definition.Filters).Unique("name")
}

// NewBedMemRepo returns an in-memory bed store that resolves ward and
// patient names the way bed_view does.
func NewBedMemRepo(wards WardRepository, patients PatientReader) *crud.MemRepo[Bed] {
	return crud.NewMemRepo[Bed](BedDefinition.Name, BedDefinition.Table, BedDefinition.Filters).
		Unique("ward_id", "number").
		WithView(func(ctx context.Context, b *Bed) {
			b.WardName = ""
			if w, err := wards.GetByID(ctx, b.WardID); err == nil {
				b.WardName = w.Name
			}
			b.PatientName = nil
			if b.PatientID != nil {
				if p, err := patients.GetByID(ctx, *b.PatientID); err == nil {
					name := p.FullName
					b.PatientName = &name
				}
			}
		})
}
