package user

import (
	"github.com/carecenter/dashboard/internal/platform/crud"
)

// Repository persists users.
type Repository = crud.Repository[User]

// NewMemRepo returns an in-memory user store with unique usernames.
func NewMemRepo() *crud.MemRepo[User] {
	return crud.NewMemRepo[User](Definition.Name, Definition.Table, Definition.Filters).Unique("username")
}
