package inventory

import (
	"context"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/domain/vendor"
	"github.com/carecenter/dashboard/internal/platform/crud"
)

type Repository = crud.Repository[Item]

type MovementRepository = crud.Repository[Movement]

type VendorReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*vendor.Vendor, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// NewMemRepo returns an in-memory item store computing the vendor name and
// low stock flag the way inventory_item_view does.
func NewMemRepo(vendors VendorReader) *crud.MemRepo[Item] {
	return crud.NewMemRepo[Item](Definition.Name, Definition.Table, Definition.Filters).
		Unique("sku").
		WithView(func(ctx context.Context, it *Item) {
			it.LowStock = it.Quantity <= it.ReorderLevel
			it.VendorName = nil
			if it.VendorID != nil {
				if v, err := vendors.GetByID(ctx, *it.VendorID); err == nil {
					name := v.Name
					it.VendorName = &name
				}
			}
		})
}

func NewMovementMemRepo(items Repository, users UserReader) *crud.MemRepo[Movement] {
	return crud.NewMemRepo[Movement](MovementDefinition.Name, MovementDefinition.Table, MovementDefinition.Filters).
		WithView(func(ctx context.Context, m *Movement) {
			m.ItemSKU = ""
			if it, err := items.GetByID(ctx, m.ItemID); err == nil {
				m.ItemSKU = it.SKU
			}
			m.Username = nil
			if m.UserID != nil {
				if u, err := users.GetByID(ctx, *m.UserID); err == nil {
					name := u.Username
					m.Username = &name
				}
			}
		})
}
