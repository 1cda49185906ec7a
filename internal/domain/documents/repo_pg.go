package documents

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Document] {
	return crud.NewPGRepo[Document](pool, "documents", Definition.Table, Definition.Filters)
}
