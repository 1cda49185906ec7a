package vehicle

import "github.com/carecenter/dashboard/internal/platform/crud"

type Repository = crud.Repository[Vehicle]

func NewMemRepo() *crud.MemRepo[Vehicle] {
	return crud.NewMemRepo[Vehicle](Definition.Name, Definition.Table, Definition.Filters).Unique("plate")
}
