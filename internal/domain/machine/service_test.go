package machine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

func newMachine(t *testing.T, svc *Service, serial string) *Machine {
	t.Helper()
	m, err := svc.Create(context.Background(), formschema.Values{"serial": serial, "model": "5008S", "status": StatusAvailable})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return m
}

func TestStatusInUseIsManaged(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemRepo(), zerolog.Nop())

	if _, err := svc.Create(ctx, formschema.Values{"serial": "FX-1", "model": "5008S", "status": StatusInUse}); err == nil {
		t.Error("creating an in-use machine must fail")
	}
	m := newMachine(t, svc, "FX-1")
	if _, err := svc.Update(ctx, m.ID, formschema.Values{"status": StatusInUse}); err == nil {
		t.Error("setting in_use by hand must fail")
	}
	if _, err := svc.Update(ctx, m.ID, formschema.Values{"status": StatusMaintenance}); err != nil {
		t.Errorf("maintenance: %v", err)
	}
}

func TestReserveRelease(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemRepo(), zerolog.Nop())
	m := newMachine(t, svc, "FX-1")

	if _, err := svc.Reserve(ctx, m.ID); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := svc.Reserve(ctx, m.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("double reserve err = %v", err)
	}
	if err := svc.Delete(ctx, m.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("delete in use err = %v", err)
	}
	if _, err := svc.Update(ctx, m.ID, formschema.Values{"status": StatusAvailable}); err == nil {
		t.Error("leaving in_use by hand must fail")
	}

	released, err := svc.Release(ctx, m.ID, 4)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status != StatusAvailable || released.HoursUsed != 4 {
		t.Errorf("released machine = %+v", released)
	}
	if err := svc.Delete(ctx, m.ID); err != nil {
		t.Errorf("Delete: %v", err)
	}
}
