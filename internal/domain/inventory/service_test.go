package inventory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/domain/vendor"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type fixture struct {
	svc     *Service
	vendors *vendor.Service
	users   *crud.MemRepo[user.User]
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vendorRepo, users := vendor.NewMemRepo(), user.NewMemRepo()
	items := NewMemRepo(vendorRepo)
	f := &fixture{vendors: vendor.NewService(vendorRepo, zerolog.Nop()), users: users, logs: &bytes.Buffer{}}
	f.svc = NewService(items, NewMovementMemRepo(items, users), vendorRepo, &db.LocalTx{}, zerolog.New(f.logs))
	f.vendors.AddDeleteGuard(f.svc.VendorGuard)
	return f
}

func (f *fixture) item(t *testing.T, sku string, qty, reorder int) *Item {
	t.Helper()
	it, err := f.svc.Create(context.Background(), formschema.Values{
		"sku": sku, "name": "Item " + sku, "category": "consumable", "unit": "box",
		"quantity": int64(qty), "reorder_level": int64(reorder),
	})
	if err != nil {
		t.Fatalf("create %s: %v", sku, err)
	}
	return it
}

func TestCreate_OpeningBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.item(t, "GLV-M", 40, 10)
	if it.LowStock {
		t.Error("40 above reorder level 10 must not be low")
	}
	moves, total, err := f.svc.History(ctx, it.ID, crud.ListParams{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || moves[0].Kind != KindIn || moves[0].Quantity != 40 || moves[0].BalanceAfter != 40 || moves[0].ItemSKU != "GLV-M" {
		t.Errorf("opening movement = %+v", moves)
	}
	if _, err := f.svc.Create(ctx, formschema.Values{"sku": "GLV-M", "name": "Dup", "category": "consumable", "unit": "box", "reorder_level": int64(0)}); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("duplicate sku err = %v", err)
	}

	updated, err := f.svc.Update(ctx, it.ID, formschema.Values{"quantity": int64(999), "name": "Gloves M"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Quantity != 40 || updated.Name != "Gloves M" {
		t.Errorf("quantity must only change through movements: %+v", updated)
	}
}

func TestAdjust(t *testing.T) {
	f := newFixture(t)
	clerk := &user.User{Username: "cal", FullName: "Cal", Roles: []string{auth.RoleClerk}, Active: true, PasswordHash: "x"}
	if err := f.users.Create(context.Background(), clerk); err != nil {
		t.Fatal(err)
	}
	ctx := auth.WithUser(context.Background(), clerk.ID.String(), clerk.Username, clerk.Roles)
	it := f.item(t, "DLZ-18", 12, 5)

	reason := "ward 3 request"
	tests := []struct {
		name    string
		adj     Adjustment
		want    int
		wantErr bool
	}{
		{"receive", Adjustment{Kind: KindIn, Quantity: 8}, 20, false},
		{"issue", Adjustment{Kind: KindOut, Quantity: 14, Reason: &reason}, 6, false},
		{"issue more than stock", Adjustment{Kind: KindOut, Quantity: 7}, 6, true},
		{"zero receive", Adjustment{Kind: KindIn}, 6, true},
		{"unknown kind", Adjustment{Kind: "lost", Quantity: 1}, 6, true},
		{"count", Adjustment{Kind: KindAdjust, Quantity: 4}, 4, false},
	}
	for _, tt := range tests {
		got, err := f.svc.Adjust(ctx, it.ID, tt.adj)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
		cur, _ := f.svc.Get(ctx, it.ID)
		if cur.Quantity != tt.want {
			t.Errorf("%s: quantity = %d, want %d", tt.name, cur.Quantity, tt.want)
		}
		if err == nil && got.Quantity != tt.want {
			t.Errorf("%s: returned quantity = %d", tt.name, got.Quantity)
		}
	}

	moves, total, err := f.svc.History(ctx, it.ID, crud.ListParams{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Fatalf("movements = %d, want 4", total)
	}
	var count *Movement
	for _, m := range moves {
		if m.Kind == KindAdjust {
			count = m
		}
	}
	if count == nil || count.Quantity != -2 || count.BalanceAfter != 4 || count.Username == nil || *count.Username != "cal" {
		t.Errorf("stock count movement = %+v", count)
	}
	if !strings.Contains(f.logs.String(), "stock at or below reorder level") {
		t.Error("dropping to the reorder level must log a warning")
	}
	if _, err := f.svc.Adjust(ctx, uuid.New(), Adjustment{Kind: KindIn, Quantity: 1}); !errors.Is(err, crud.ErrNotFound) {
		t.Errorf("unknown item err = %v", err)
	}
}

func TestLowStockAndVendors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v, err := f.vendors.Create(ctx, formschema.Values{"name": "MedSupply", "category": "medical_supplies", "active": true})
	if err != nil {
		t.Fatal(err)
	}
	idle, err := f.vendors.Create(ctx, formschema.Values{"name": "Gone Ltd", "category": "other", "active": false})
	if err != nil {
		t.Fatal(err)
	}

	low, err := f.svc.Create(ctx, formschema.Values{
		"sku": "SAL-1", "name": "Saline", "category": "medication", "unit": "bottle",
		"quantity": int64(2), "reorder_level": int64(5), "vendor_id": v.ID.String(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !low.LowStock || low.VendorName == nil || *low.VendorName != "MedSupply" {
		t.Errorf("item view = %+v", low)
	}
	f.item(t, "GAU-1", 50, 5)

	rows, total, err := f.svc.LowStock(ctx, crud.ListParams{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || rows[0].SKU != "SAL-1" {
		t.Errorf("low stock = %d rows", total)
	}

	_, err = f.svc.Update(ctx, low.ID, formschema.Values{"vendor_id": idle.ID.String()})
	if ve, ok := formschema.AsValidationError(err); !ok || len(ve.Fields["vendor_id"]) == 0 {
		t.Errorf("inactive vendor err = %v", err)
	}
	if err := f.vendors.Delete(ctx, v.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("delete vendor with items err = %v", err)
	}
	if err := f.svc.Delete(ctx, low.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.vendors.Delete(ctx, v.ID); err != nil {
		t.Errorf("delete vendor after its items: %v", err)
	}
}
