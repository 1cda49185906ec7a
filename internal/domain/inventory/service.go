package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type Service struct {
	*crud.Resource[Item]
	Movements *crud.Resource[Movement]

	items     Repository
	movements MovementRepository
	vendors   VendorReader
	tx        db.TxRunner
	log       zerolog.Logger
}

func NewService(items Repository, movements MovementRepository, vendors VendorReader, tx db.TxRunner, log zerolog.Logger) *Service {
	s := &Service{
		Resource:  crud.NewResource[Item](Definition, items, log),
		Movements: crud.NewResource[Movement](MovementDefinition, movements, log),
		items:     items,
		movements: movements,
		vendors:   vendors,
		tx:        tx,
		log:       log.With().Str("component", "inventory").Logger(),
	}
	s.Resource.BeforeSave = s.beforeSave
	return s
}

func (s *Service) beforeSave(ctx context.Context, row, prev *Item) error {
	if prev != nil {
		row.Quantity = prev.Quantity
	}
	if row.VendorID == nil || (prev != nil && prev.VendorID != nil && *prev.VendorID == *row.VendorID) {
		return nil
	}
	v, err := s.vendors.GetByID(ctx, *row.VendorID)
	if errors.Is(err, crud.ErrNotFound) {
		return formschema.FieldError("vendor_id", "unknown vendor")
	}
	if err != nil {
		return err
	}
	if !v.Active {
		return formschema.FieldError("vendor_id", v.Name+" is not an active vendor")
	}
	return nil
}

// Create stores a new item and records its opening quantity as a movement.
func (s *Service) Create(ctx context.Context, values formschema.Values) (*Item, error) {
	var out *Item
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		it, err := s.Resource.Create(ctx, values)
		if err != nil {
			return err
		}
		if it.Quantity > 0 {
			reason := "opening balance"
			if err := s.record(ctx, it, KindIn, it.Quantity, &reason); err != nil {
				return err
			}
		}
		out = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an item together with its movements.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		it, err := s.items.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if s.Resource.BeforeDelete != nil {
			if err := s.Resource.BeforeDelete(ctx, it); err != nil {
				return err
			}
		}
		moves, err := s.movements.FindBy(ctx, map[string]any{"item_id": id})
		if err != nil {
			return err
		}
		for _, m := range moves {
			if err := s.movements.Delete(ctx, m.ID); err != nil && !errors.Is(err, crud.ErrNotFound) {
				return err
			}
		}
		return s.items.Delete(ctx, id)
	})
}

func (s *Service) record(ctx context.Context, it *Item, kind string, delta int, reason *string) error {
	m := &Movement{ItemID: it.ID, Kind: kind, Quantity: delta, BalanceAfter: it.Quantity, Reason: reason}
	if uid, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		m.UserID = &uid
	}
	if err := s.movements.Create(ctx, m); err != nil {
		return fmt.Errorf("record movement: %w", err)
	}
	return nil
}

// Adjust applies a stock movement and records it in the same transaction.
// Receiving adds, issuing subtracts and a stock count sets the quantity.
func (s *Service) Adjust(ctx context.Context, id uuid.UUID, a Adjustment) (*Item, error) {
	if a.Quantity < 0 {
		return nil, formschema.FieldError("quantity", "must be at least 0")
	}
	if (a.Kind == KindIn || a.Kind == KindOut) && a.Quantity == 0 {
		return nil, formschema.FieldError("quantity", "must be at least 1")
	}

	var out *Item
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := crud.Lock(ctx, s.items, id); err != nil {
			return err
		}
		it, err := s.items.GetByID(ctx, id)
		if err != nil {
			return err
		}
		var delta int
		switch a.Kind {
		case KindIn:
			delta = a.Quantity
		case KindOut:
			if a.Quantity > it.Quantity {
				return crud.Conflictf("only %d %s of %s in stock", it.Quantity, it.Unit, it.SKU)
			}
			delta = -a.Quantity
		case KindAdjust:
			delta = a.Quantity - it.Quantity
		default:
			return formschema.FieldError("kind", "is not a valid choice")
		}
		it.Quantity += delta
		if err := s.items.Update(ctx, it); err != nil {
			return err
		}
		if err := s.record(ctx, it, a.Kind, delta, a.Reason); err != nil {
			return err
		}
		out = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Quantity <= out.ReorderLevel {
		s.log.Warn().Str("sku", out.SKU).Int("quantity", out.Quantity).Int("reorder_level", out.ReorderLevel).
			Msg("stock at or below reorder level")
	}
	return out, nil
}

// LowStock lists the items at or below their reorder level.
func (s *Service) LowStock(ctx context.Context, p crud.ListParams) ([]*Item, int, error) {
	if p.Filters == nil {
		p.Filters = filterbar.Values{}
	}
	p.Filters["low_stock"] = filterbar.Value{Bool: true}
	return s.items.List(ctx, p)
}

// History lists the movements of one item, newest first.
func (s *Service) History(ctx context.Context, id uuid.UUID, p crud.ListParams) ([]*Movement, int, error) {
	if _, err := s.items.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	p.Where = map[string]any{"item_id": id}
	return s.movements.List(ctx, p)
}

// VendorGuard vetoes deleting a vendor that still supplies items.
func (s *Service) VendorGuard(ctx context.Context, vendorID uuid.UUID) error {
	n, err := s.items.Count(ctx, crud.ListParams{Where: map[string]any{"vendor_id": vendorID}})
	if err != nil {
		return err
	}
	if n > 0 {
		return crud.Conflictf("vendor supplies %d inventory items", n)
	}
	return nil
}
