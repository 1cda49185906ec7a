package dialysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type fixture struct {
	svc      *Service
	machines *machine.Service
	patients *patient.Service
	clock    time.Time

	patient *patient.Patient
	machine *machine.Machine
	nurse   *user.User
	clerk   *user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	patientRepo, machineRepo, userRepo := patient.NewMemRepo(), machine.NewMemRepo(), user.NewMemRepo()
	f := &fixture{
		machines: machine.NewService(machineRepo, zerolog.Nop()),
		patients: patient.NewService(patientRepo, zerolog.Nop()),
		clock:    time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(NewMemRepo(patientRepo, machineRepo, userRepo), Deps{
		Patients: patientRepo,
		Machines: machineRepo,
		Pool:     f.machines,
		Staff:    userRepo,
		Tx:       &db.LocalTx{},
	}, zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }
	f.patients.AddDeleteGuard(f.svc.PatientGuard)
	f.machines.AddDeleteGuard(f.svc.MachineGuard)

	f.patient = &patient.Patient{MRN: "MRN-1", FullName: "Ana Ortiz", Status: patient.StatusActive}
	f.machine = &machine.Machine{Serial: "FX-1", Model: "5008S", Status: machine.StatusAvailable}
	f.nurse = &user.User{Username: "joy", FullName: "Nurse Joy", Roles: []string{auth.RoleNurse}, Active: true, PasswordHash: "x"}
	f.clerk = &user.User{Username: "cal", FullName: "Cal Clerk", Roles: []string{auth.RoleClerk}, Active: true, PasswordHash: "x"}
	for _, err := range []error{
		patientRepo.Create(ctx, f.patient),
		machineRepo.Create(ctx, f.machine),
		userRepo.Create(ctx, f.nurse),
		userRepo.Create(ctx, f.clerk),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) schedule(t *testing.T) *Session {
	t.Helper()
	s, err := f.svc.Create(context.Background(), formschema.Values{
		"patient_id":       f.patient.ID.String(),
		"machine_id":       f.machine.ID.String(),
		"nurse_id":         f.nurse.ID.String(),
		"scheduled_at":     f.clock,
		"duration_minutes": int64(240),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return s
}

func weight(kg float64) Vitals { return Vitals{WeightKg: &kg} }

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s := f.schedule(t)
	if s.Status != StatusScheduled {
		t.Errorf("status = %q", s.Status)
	}
	if s.PatientName != "Ana Ortiz" || s.PatientMRN != "MRN-1" || s.MachineSerial != "FX-1" || s.NurseName == nil || *s.NurseName != "Nurse Joy" {
		t.Errorf("view columns not resolved: %+v", s)
	}

	base := formschema.Values{
		"patient_id": f.patient.ID.String(), "machine_id": f.machine.ID.String(),
		"scheduled_at": f.clock, "duration_minutes": int64(240),
	}
	with := func(k string, v any) formschema.Values {
		out := formschema.Values{}
		for key, val := range base {
			out[key] = val
		}
		out[k] = v
		return out
	}
	tests := []struct {
		name   string
		values formschema.Values
		field  string
	}{
		{"unknown patient", with("patient_id", uuid.NewString()), "patient_id"},
		{"unknown machine", with("machine_id", uuid.NewString()), "machine_id"},
		{"nurse without the role", with("nurse_id", f.clerk.ID.String()), "nurse_id"},
		{"too short", with("duration_minutes", int64(10)), "duration_minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.values)
			if ve, ok := formschema.AsValidationError(err); !ok || len(ve.Fields[tt.field]) == 0 {
				t.Errorf("err = %v, want a %s field error", err, tt.field)
			}
		})
	}

	if _, err := f.patients.Update(ctx, f.patient.ID, formschema.Values{"status": patient.StatusDischarged}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, base); err == nil {
		t.Error("scheduling a discharged patient must fail")
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.schedule(t)

	if _, err := f.svc.Complete(ctx, s.ID, weight(70)); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("complete before start err = %v", err)
	}

	started, err := f.svc.Start(ctx, s.ID, Vitals{WeightKg: ptr(72.5), BloodPressure: ptr("140/90")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != StatusInProgress || started.StartedAt == nil || *started.PreWeightKg != 72.5 {
		t.Errorf("started = %+v", started)
	}
	m, _ := f.machines.Get(ctx, f.machine.ID)
	if m.Status != machine.StatusInUse {
		t.Errorf("machine status = %q, want in_use", m.Status)
	}
	if _, err := f.svc.Start(ctx, s.ID, weight(72)); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("double start err = %v", err)
	}
	other := f.schedule(t)
	if _, err := f.svc.Start(ctx, other.ID, weight(72)); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("start on a busy machine err = %v", err)
	}
	if err := f.svc.Delete(ctx, s.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("delete running session err = %v", err)
	}
	if _, err := f.svc.Update(ctx, s.ID, formschema.Values{"machine_id": uuid.NewString()}); err == nil {
		t.Error("changing the machine of a running session must fail")
	}

	f.clock = f.clock.Add(4 * time.Hour)
	done, err := f.svc.Complete(ctx, s.ID, Vitals{WeightKg: ptr(70.25), Notes: ptr("cramps at 3h")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.FluidRemovedKg == nil || *done.FluidRemovedKg != 2.25 {
		t.Errorf("completed = %+v", done)
	}
	if done.Notes == nil || *done.Notes != "cramps at 3h" {
		t.Errorf("notes = %v", done.Notes)
	}
	m, _ = f.machines.Get(ctx, f.machine.ID)
	if m.Status != machine.StatusAvailable || m.HoursUsed != 4 {
		t.Errorf("released machine = %+v", m)
	}

	if _, err := f.svc.Update(ctx, s.ID, formschema.Values{"dialyzer": "FX80"}); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("editing a completed session err = %v", err)
	}
	if _, err := f.svc.Cancel(ctx, s.ID, "late"); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("cancel completed err = %v", err)
	}
	if err := f.patients.Delete(ctx, f.patient.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("delete patient with sessions err = %v", err)
	}
	if err := f.machines.Delete(ctx, f.machine.ID); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("delete machine with sessions err = %v", err)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s := f.schedule(t)
	if _, err := f.svc.Cancel(ctx, s.ID, "  "); err == nil {
		t.Error("cancel without a reason must fail")
	}
	if _, err := f.svc.Start(ctx, s.ID, weight(80)); err != nil {
		t.Fatal(err)
	}
	f.clock = f.clock.Add(90 * time.Minute)
	got, err := f.svc.Cancel(ctx, s.ID, "hypotension")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != StatusCancelled || got.CancelReason == nil || *got.CancelReason != "hypotension" || got.EndedAt == nil {
		t.Errorf("cancelled = %+v", got)
	}
	m, _ := f.machines.Get(ctx, f.machine.ID)
	if m.Status != machine.StatusAvailable || m.HoursUsed != 1.5 {
		t.Errorf("machine after cancel = %+v", m)
	}
	if err := f.svc.Delete(ctx, s.ID); err != nil {
		t.Errorf("delete cancelled session: %v", err)
	}
}

func TestList_DayFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.schedule(t)
	f.clock = f.clock.AddDate(0, 0, 1)
	f.schedule(t)

	p := crud.ListParams{Filters: filterbar.Values{"day": {Day: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}}}
	rows, total, err := f.svc.List(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ScheduledAt.Day() != 5 {
		t.Errorf("day filter = %d rows", total)
	}
	rows, total, err = f.svc.List(ctx, crud.ListParams{Filters: filterbar.Values{"machine": {Text: "FX-1"}}})
	if err != nil || total != 2 || len(rows) != 2 {
		t.Errorf("machine filter = %d, %v", total, err)
	}
}

func TestFluidRemoved(t *testing.T) {
	if FluidRemoved(nil, ptr(70.0)) != nil {
		t.Error("missing pre weight must give nil")
	}
	if got := FluidRemoved(ptr(71.3), ptr(69.1)); *got != 2.2 {
		t.Errorf("FluidRemoved = %v", *got)
	}
}

func ptr[T any](v T) *T { return &v }
