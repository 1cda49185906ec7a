package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/domain/inventory"
	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/domain/vehicle"
	"github.com/carecenter/dashboard/internal/domain/vendor"
	"github.com/carecenter/dashboard/internal/domain/ward"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type center struct {
	wards    *ward.Service
	patients *patient.Service
	machines *machine.Service
	vendors  *vendor.Service
	items    *inventory.Service
	vehicles *vehicle.Service
}

func newCenter() *center {
	log := zerolog.Nop()
	tx := &db.LocalTx{}
	patientRepo := patient.NewMemRepo()
	wardRepo := ward.NewWardMemRepo()
	vendorRepo := vendor.NewMemRepo()
	itemRepo := inventory.NewMemRepo(vendorRepo)
	return &center{
		wards:    ward.NewService(wardRepo, ward.NewBedMemRepo(wardRepo, patientRepo), patientRepo, tx, log),
		patients: patient.NewService(patientRepo, log),
		machines: machine.NewService(machine.NewMemRepo(), log),
		vendors:  vendor.NewService(vendorRepo, log),
		items:    inventory.NewService(itemRepo, inventory.NewMovementMemRepo(itemRepo, user.NewMemRepo()), vendorRepo, tx, log),
		vehicles: vehicle.NewService(vehicle.NewMemRepo(), tx, log),
	}
}

func (c *center) targets() Targets {
	return Targets{
		Wards:    CreatorOf(c.wards.Wards.Create),
		Beds:     CreatorOf(c.wards.Beds.Create),
		Patients: CreatorOf(c.patients.Create),
		Machines: CreatorOf(c.machines.Create),
		Vendors:  CreatorOf(c.vendors.Create),
		Items:    CreatorOf(c.items.Create),
		Vehicles: CreatorOf(c.vehicles.Create),
	}
}

func total[T any](t *testing.T, r *crud.Resource[T]) int {
	t.Helper()
	_, n, err := r.List(context.Background(), crud.ListParams{Query: datatable.Query{Page: 1, PageSize: 1}})
	if err != nil {
		t.Fatalf("list %s: %v", r.Def.Name, err)
	}
	return n
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

func TestDataGenerator_SameSeedSameRows(t *testing.T) {
	a, b := NewDataGenerator(42), NewDataGenerator(42)
	vendorID := uuid.New()
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(a.GeneratePatient(), b.GeneratePatient()); diff != "" {
			t.Fatalf("patient %d differs (-a +b):\n%s", i, diff)
		}
		if diff := cmp.Diff(a.GenerateItem(vendorID), b.GenerateItem(vendorID)); diff != "" {
			t.Fatalf("item %d differs (-a +b):\n%s", i, diff)
		}
	}

	c := NewDataGenerator(43)
	if cmp.Equal(NewDataGenerator(42).GeneratePatient(), c.GeneratePatient()) {
		t.Fatal("different seeds produced the same patient")
	}
}

func TestDataGenerator_ValuesPassForms(t *testing.T) {
	gen := NewDataGenerator(7)
	id := uuid.New()
	cases := []struct {
		name string
		def  *crud.Definition
		gen  func() formschema.Values
	}{
		{"ward", ward.Definition, func() formschema.Values { return gen.GenerateWard(6) }},
		{"bed", ward.BedDefinition, func() formschema.Values { return gen.GenerateBed(id, "dialysis", 3) }},
		{"patient", patient.Definition, gen.GeneratePatient},
		{"machine", machine.Definition, gen.GenerateMachine},
		{"vendor", vendor.Definition, gen.GenerateVendor},
		{"item", inventory.Definition, func() formschema.Values { return gen.GenerateItem(id) }},
		{"vehicle", vehicle.Definition, gen.GenerateVehicle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 25; i++ {
				values := tc.gen()
				if err := tc.def.Validator().Validate(values); err != nil {
					t.Fatalf("generated %v: %v", values, err)
				}
			}
		})
	}
}

func TestDataGenerator_UniqueCodes(t *testing.T) {
	gen := NewDataGenerator(1)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		mrn := gen.GeneratePatient()["mrn"].(string)
		if seen[mrn] {
			t.Fatalf("duplicate mrn %s", mrn)
		}
		seen[mrn] = true
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

func TestSeeder_Run(t *testing.T) {
	c := newCenter()
	s := NewSeeder(c.targets(), zerolog.Nop())
	cfg := SeedConfig{Wards: 2, BedsPerWard: 4, Patients: 10, Machines: 3, Vendors: 2, ItemsPerVendor: 3, Vehicles: 2, Seed: 99}

	res, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := &SeedResult{Wards: 2, Beds: 8, Patients: 10, Machines: 3, Vendors: 2, Items: 6, Vehicles: 2, Seed: 99}
	if diff := cmp.Diff(want, res, cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".ElapsedMs"
	}, cmp.Ignore())); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if res.Total() != 33 {
		t.Fatalf("Total = %d, want 33", res.Total())
	}

	if n := total(t, c.wards.Beds); n != 8 {
		t.Fatalf("beds stored = %d, want 8", n)
	}
	if n := total(t, c.items.Resource); n != 6 {
		t.Fatalf("items stored = %d, want 6", n)
	}
	if n := total(t, c.vehicles.Resource); n != 2 {
		t.Fatalf("vehicles stored = %d, want 2", n)
	}
}

func TestSeeder_RerunSameSeedConflicts(t *testing.T) {
	c := newCenter()
	s := NewSeeder(c.targets(), zerolog.Nop())
	cfg := SeedConfig{Patients: 3, Seed: 5}
	if _, err := s.Run(context.Background(), cfg); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := s.Run(context.Background(), cfg)
	if !errors.Is(err, crud.ErrConflict) {
		t.Fatalf("second run err = %v, want conflict", err)
	}
	if res.Patients != 0 {
		t.Fatalf("second run created %d patients", res.Patients)
	}

	if _, err := s.Run(context.Background(), SeedConfig{Patients: 3, Seed: 6}); err != nil {
		t.Fatalf("run with a new seed: %v", err)
	}
}

func TestSeeder_MissingTarget(t *testing.T) {
	s := NewSeeder(Targets{}, zerolog.Nop())
	_, err := s.Run(context.Background(), SeedConfig{Vehicles: 1, Seed: 1})
	if err == nil || !strings.Contains(err.Error(), "vehicle") {
		t.Fatalf("err = %v, want missing vehicle target", err)
	}
}

func TestSeedConfig_Validate(t *testing.T) {
	if err := DefaultSeedConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	for _, cfg := range []SeedConfig{
		{Patients: -1},
		{Machines: maxRows + 1},
		{Wards: 100, BedsPerWard: 10},
	} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", cfg)
		}
	}
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

func seedRequest(t *testing.T, roles []string, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h := NewSeedHandler(NewSeeder(newCenter().targets(), zerolog.Nop()))
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), uuid.NewString(), "tester", roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSeedHandler(t *testing.T) {
	rec := seedRequest(t, []string{auth.RoleAdmin}, `{"wards":1,"beds_per_ward":2,"patients":2,"seed":11}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"beds":2`) {
		t.Fatalf("body = %s", rec.Body)
	}

	if rec := seedRequest(t, []string{auth.RoleNurse}, `{}`); rec.Code != http.StatusForbidden {
		t.Fatalf("nurse status = %d, want 403", rec.Code)
	}
	if rec := seedRequest(t, []string{auth.RoleAdmin}, `{"patients":-2}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative count status = %d, want 400", rec.Code)
	}
}
