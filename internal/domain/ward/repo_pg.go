package ward

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewWardPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Ward] {
	return crud.NewPGRepo[Ward](pool, "wards", Definition.Table, Definition.Filters)
}

func NewBedPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Bed] {
	return crud.NewPGRepo[Bed](pool, "beds", BedDefinition.Table, BedDefinition.Filters).FromView("bed_view")
}
