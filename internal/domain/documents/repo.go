package documents

import "github.com/carecenter/dashboard/internal/platform/crud"

type Repository = crud.Repository[Document]

func NewMemRepo() *crud.MemRepo[Document] {
	return crud.NewMemRepo[Document](Definition.Name, Definition.Table, Definition.Filters).Unique("storage_key")
}
