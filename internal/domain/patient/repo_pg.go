package patient

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Patient] {
	return crud.NewPGRepo[Patient](pool, "patients", Definition.Table, Definition.Filters)
}
