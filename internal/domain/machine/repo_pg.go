package machine

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Machine] {
	return crud.NewPGRepo[Machine](pool, "machines", Definition.Table, Definition.Filters)
}
