package inventory

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Item] {
	return crud.NewPGRepo[Item](pool, "inventory_items", Definition.Table, Definition.Filters).
		FromView("inventory_item_view")
}

func NewMovementPGRepo(pool *pgxpool.Pool) *crud.PGRepo[Movement] {
	return crud.NewPGRepo[Movement](pool, "stock_movements", MovementDefinition.Table, MovementDefinition.Filters).
		FromView("stock_movement_view")
}
