package vehicle

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Vehicle] {
	return crud.NewPGRepo[Vehicle](pool, "vehicles", Definition.Table, Definition.Filters)
}
