package shift

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Shift] {
	return crud.NewPGRepo[Shift](pool, "shifts", Definition.Table, Definition.Filters).FromView("shift_view")
}
