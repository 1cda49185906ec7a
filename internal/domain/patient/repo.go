package patient

import (
	"github.com/carecenter/dashboard/internal/platform/crud"
)

// Repository persists patients.
type Repository = crud.Repository[Patient]

func NewMemRepo() *crud.MemRepo[Patient] {
	return crud.NewMemRepo[Patient](Definition.Name, Definition.Table, Definition.Filters).Unique("mrn")
}
