package user

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[User] {
	return crud.NewPGRepo[User](pool, "users", Definition.Table, Definition.Filters)
}
