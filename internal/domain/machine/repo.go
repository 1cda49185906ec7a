package machine

import (
	"github.com/carecenter/dashboard/internal/platform/crud"
)

// Repository persists machines.
type Repository = crud.Repository[Machine]

func NewMemRepo() *crud.MemRepo[Machine] {
	return crud.NewMemRepo[Machine](Definition.Name, Definition.Table, Definition.Filters).Unique("serial")
}
