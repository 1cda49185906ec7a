package shift

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/domain/ward"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	nurse   *user.User
	retired *user.User
	ward    *ward.Ward
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	users, wards := user.NewMemRepo(), ward.NewWardMemRepo()
	f := &fixture{
		svc:     NewService(NewMemRepo(users, wards), users, wards, &db.LocalTx{}, zerolog.Nop()),
		nurse:   &user.User{Username: "joy", FullName: "Nurse Joy", Roles: []string{auth.RoleNurse}, Active: true, PasswordHash: "x"},
		retired: &user.User{Username: "old", FullName: "Old Timer", Roles: []string{auth.RoleNurse}, PasswordHash: "x"},
		ward:    &ward.Ward{Name: "North", WardType: "general", Capacity: 10},
	}
	for _, err := range []error{users.Create(ctx, f.nurse), users.Create(ctx, f.retired), wards.Create(ctx, f.ward)} {
		if err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) values(from, to time.Duration) formschema.Values {
	return formschema.Values{
		"staff_id":   f.nurse.ID.String(),
		"ward_id":    f.ward.ID.String(),
		"shift_type": "morning",
		"starts_at":  monday.Add(from),
		"ends_at":    monday.Add(to),
	}
}

func TestCreate_Rules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.svc.Create(ctx, f.values(7*time.Hour, 15*time.Hour))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.StaffName != "Nurse Joy" || s.WardName == nil || *s.WardName != "North" {
		t.Errorf("view columns = %q %v", s.StaffName, s.WardName)
	}

	with := func(v formschema.Values, k string, val any) formschema.Values {
		v[k] = val
		return v
	}
	tests := []struct {
		name   string
		values formschema.Values
		field  string
	}{
		{"ends before start", f.values(20*time.Hour, 19*time.Hour), "ends_at"},
		{"too long", f.values(0, 30*time.Hour), "ends_at"},
		{"unknown staff", with(f.values(16*time.Hour, 20*time.Hour), "staff_id", uuid.NewString()), "staff_id"},
		{"inactive staff", with(f.values(16*time.Hour, 20*time.Hour), "staff_id", f.retired.ID.String()), "staff_id"},
		{"unknown ward", with(f.values(16*time.Hour, 20*time.Hour), "ward_id", uuid.NewString()), "ward_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.values)
			if ve, ok := formschema.AsValidationError(err); !ok || len(ve.Fields[tt.field]) == 0 {
				t.Errorf("err = %v, want a %s field error", err, tt.field)
			}
		})
	}
}

func TestCreate_Overlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Create(ctx, f.values(7*time.Hour, 15*time.Hour)); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Create(ctx, f.values(14*time.Hour, 22*time.Hour)); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("overlapping shift err = %v", err)
	}
	late, err := f.svc.Create(ctx, f.values(15*time.Hour, 23*time.Hour))
	if err != nil {
		t.Fatalf("back-to-back shift: %v", err)
	}
	if _, err := f.svc.Update(ctx, late.ID, formschema.Values{"starts_at": monday.Add(13 * time.Hour)}); !errors.Is(err, crud.ErrConflict) {
		t.Errorf("update into an overlap err = %v", err)
	}
	if _, err := f.svc.Update(ctx, late.ID, formschema.Values{"ends_at": monday.Add(22 * time.Hour)}); err != nil {
		t.Errorf("a shift must not overlap itself: %v", err)
	}
}

// lockingStaff records row locks the way a PostgreSQL user repository
// takes them.
type lockingStaff struct {
	StaffReader
	events *[]string
}

func (l lockingStaff) Lock(_ context.Context, id uuid.UUID) error {
	*l.events = append(*l.events, "lock "+id.String())
	return nil
}

type recordingRepo struct {
	Repository
	events *[]string
}

func (r recordingRepo) FindBy(ctx context.Context, where map[string]any) ([]*Shift, error) {
	*r.events = append(*r.events, "find")
	return r.Repository.FindBy(ctx, where)
}

func TestCreate_LocksStaffBeforeOverlapCheck(t *testing.T) {
	ctx := context.Background()
	users, wards := user.NewMemRepo(), ward.NewWardMemRepo()
	nurse := &user.User{Username: "joy", FullName: "Nurse Joy", Roles: []string{auth.RoleNurse}, Active: true, PasswordHash: "x"}
	if err := users.Create(ctx, nurse); err != nil {
		t.Fatal(err)
	}
	var events []string
	svc := NewService(recordingRepo{NewMemRepo(users, wards), &events}, lockingStaff{users, &events}, wards, &db.LocalTx{}, zerolog.Nop())

	_, err := svc.Create(ctx, formschema.Values{
		"staff_id":   nurse.ID.String(),
		"shift_type": "night",
		"starts_at":  monday.Add(22 * time.Hour),
		"ends_at":    monday.Add(30 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := []string{"lock " + nurse.ID.String(), "find"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestCreate_ConcurrentOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Duration(8+i%2) * time.Hour
			_, err := f.svc.Create(ctx, f.values(start, start+6*time.Hour))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, crud.ErrConflict):
				conflicts++
			default:
				t.Errorf("Create: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if created != 1 || conflicts != writers-1 {
		t.Errorf("created %d, conflicts %d; want exactly one shift", created, conflicts)
	}
}

func TestOnDuty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	night, err := f.svc.Create(ctx, f.values(-2*time.Hour, 6*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, f.values(7*time.Hour, 15*time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.OnDuty(ctx, monday.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != night.ID {
		t.Errorf("OnDuty(03:00) = %d shifts", len(got))
	}
	if got, _ := f.svc.OnDuty(ctx, monday.Add(6*time.Hour+30*time.Minute)); len(got) != 0 {
		t.Errorf("OnDuty between shifts = %d", len(got))
	}
}
