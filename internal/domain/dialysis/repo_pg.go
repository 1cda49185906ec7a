package dialysis

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Session] {
	return crud.NewPGRepo[Session](pool, "dialysis_sessions", Definition.Table, Definition.Filters).
		FromView("dialysis_session_view")
}
