// Package sandbox generates demo data for training and evaluation
// environments. Generated rows go through the same services as rows
// entered by staff, so they pass the same validation and guards.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/domain/vehicle"
	"github.com/carecenter/dashboard/internal/domain/ward"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls how many rows of each kind are generated.
type SeedConfig struct {
	Wards          int   `json:"wards"`
	BedsPerWard    int   `json:"beds_per_ward"`
	Patients       int   `json:"patients"`
	Machines       int   `json:"machines"`
	Vendors        int   `json:"vendors"`
	ItemsPerVendor int   `json:"items_per_vendor"`
	Vehicles       int   `json:"vehicles"`
	Seed           int64 `json:"seed"`
}

// DefaultSeedConfig returns a small center: enough rows to fill every
// page without paging through hundreds.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Wards:          3,
		BedsPerWard:    6,
		Patients:       20,
		Machines:       8,
		Vendors:        4,
		ItemsPerVendor: 3,
		Vehicles:       3,
	}
}

const maxRows = 500

// Validate rejects negative counts and runs that would flood a store.
func (c SeedConfig) Validate() error {
	counts := map[string]int{
		"wards": c.Wards, "beds_per_ward": c.BedsPerWard, "patients": c.Patients,
		"machines": c.Machines, "vendors": c.Vendors, "items_per_vendor": c.ItemsPerVendor,
		"vehicles": c.Vehicles,
	}
	for name, n := range counts {
		if n < 0 || n > maxRows {
			return fmt.Errorf("%s must be between 0 and %d", name, maxRows)
		}
	}
	if c.Wards*c.BedsPerWard > maxRows || c.Vendors*c.ItemsPerVendor > maxRows {
		return fmt.Errorf("at most %d beds and %d items per run", maxRows, maxRows)
	}
	return nil
}

// SeedResult counts the rows created by a run.
type SeedResult struct {
	Wards     int   `json:"wards"`
	Beds      int   `json:"beds"`
	Patients  int   `json:"patients"`
	Machines  int   `json:"machines"`
	Vendors   int   `json:"vendors"`
	Items     int   `json:"items"`
	Vehicles  int   `json:"vehicles"`
	Seed      int64 `json:"seed"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// Total is the number of rows created.
func (r *SeedResult) Total() int {
	return r.Wards + r.Beds + r.Patients + r.Machines + r.Vendors + r.Items + r.Vehicles
}

// ---------------------------------------------------------------------------
// Reference data
// ---------------------------------------------------------------------------

var (
	firstNames = []string{
		"Amara", "Bilal", "Chen", "Dalia", "Emeka", "Farah", "Goran", "Hana",
		"Ismail", "Jana", "Kofi", "Leila", "Mateo", "Nadia", "Omar", "Priya",
		"Quentin", "Rosa", "Samir", "Tamar", "Uma", "Viktor", "Wen", "Yusuf",
	}

	lastNames = []string{
		"Abebe", "Bauer", "Costa", "Diallo", "Eriksen", "Fernandes", "Grant",
		"Haddad", "Ivanova", "Jensen", "Kaur", "Lopez", "Mensah", "Novak",
		"Okafor", "Petrov", "Rahman", "Silva", "Tanaka", "Weber",
	}

	streets = []string{
		"12 Harbor Road", "48 Mill Lane", "3 Station Square", "207 Orchard Street",
		"19 Chapel Row", "75 Riverside Drive", "6 Linden Court", "140 Market Street",
	}

	wardNames = []string{
		"North", "South", "East", "West", "Garden", "Lakeside", "Cedar", "Maple",
	}

	wardTypes = []string{"general", "dialysis", "icu", "pediatric", "maternity", "isolation"}

	bedTypes = map[string]string{
		"general": "standard", "dialysis": "dialysis", "icu": "icu",
		"pediatric": "standard", "maternity": "standard", "isolation": "isolation",
	}

	genders    = []string{"female", "male", "female", "male", "other", "unknown"}
	bloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O+", "O-"}

	machineModels = []struct{ model, manufacturer string }{
		{"5008S CorDiax", "Fresenius"},
		{"AK 98", "Baxter"},
		{"Dialog+", "B. Braun"},
		{"DBB-EXA", "Nikkiso"},
		{"Artis Physio", "Baxter"},
	}

	vendorNames = []string{
		"Medline Supply", "Northgate Pharma", "Clearwater Equipment", "Apex Maintenance",
		"Fresh Table Catering", "Swift Medical Transport", "Unity Linen", "Harbor Dialysis Supply",
	}

	vendorCategories = []string{
		"medical_supplies", "pharmaceuticals", "equipment", "maintenance", "food", "transport", "other",
	}

	stockItems = []struct{ name, category, unit string }{
		{"Hemodialyzer 1.8 m2", "dialyzer", "unit"},
		{"Bloodline set", "dialyzer", "pack"},
		{"Fistula needle 16G", "consumable", "box"},
		{"Saline 0.9% 1L", "medication", "bottle"},
		{"Heparin 5000 IU", "medication", "box"},
		{"Nitrile gloves M", "consumable", "box"},
		{"Bed sheet", "linen", "unit"},
		{"Surface disinfectant", "cleaning", "liter"},
		{"Acid concentrate", "consumable", "liter"},
		{"Pump segment", "spare_part", "unit"},
	}

	vehicleModels = []struct {
		kind, makeModel string
		seats           int
	}{
		{"ambulance", "Mercedes Sprinter", 4},
		{"van", "Ford Transit", 9},
		{"car", "Toyota Corolla", 4},
		{"van", "Volkswagen Crafter", 12},
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces form values for demo rows. The same seed yields
// the same rows.
type DataGenerator struct {
	rng     *rand.Rand
	batch   int
	counter int
	now     time.Time
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed
// is 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &DataGenerator{
		rng:   rng,
		batch: 1000 + rng.Intn(9000),
		now:   time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// code returns a "batch-counter" suffix for values stores keep unique.
// Runs with different seeds get different batches.
func (g *DataGenerator) code() string {
	g.counter++
	return fmt.Sprintf("%04d-%03d", g.batch, g.counter)
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomDate(minYear, maxYear int) time.Time {
	y := minYear + g.rng.Intn(maxYear-minYear+1)
	m := time.Month(1 + g.rng.Intn(12))
	d := 1 + g.rng.Intn(28)
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysAgo returns a date up to n days before today.
func (g *DataGenerator) daysAgo(n int) time.Time {
	return g.now.AddDate(0, 0, -g.rng.Intn(n+1))
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("(%03d) %03d-%04d",
		200+g.rng.Intn(800),
		200+g.rng.Intn(800),
		g.rng.Intn(10000),
	)
}

// GenerateWard produces a ward with room for beds beds.
func (g *DataGenerator) GenerateWard(beds int) formschema.Values {
	kind := g.pick(wardTypes)
	return formschema.Values{
		"name":      g.pick(wardNames) + " Wing " + g.code(),
		"ward_type": kind,
		"floor":     g.rng.Intn(5),
		"capacity":  beds + g.rng.Intn(3),
	}
}

// GenerateBed produces bed n of a ward. wardType picks the bed type.
func (g *DataGenerator) GenerateBed(wardID uuid.UUID, wardType string, n int) formschema.Values {
	bedType, ok := bedTypes[wardType]
	if !ok {
		bedType = "standard"
	}
	status := ward.BedAvailable
	if g.rng.Intn(10) == 0 {
		status = ward.BedMaintenance
	}
	return formschema.Values{
		"ward_id":  wardID.String(),
		"number":   fmt.Sprintf("B-%02d", n),
		"bed_type": bedType,
		"status":   status,
	}
}

// GeneratePatient produces a registered patient. Most are active.
func (g *DataGenerator) GeneratePatient() formschema.Values {
	first, last := g.pick(firstNames), g.pick(lastNames)
	status := patient.StatusActive
	switch g.rng.Intn(10) {
	case 0:
		status = patient.StatusDischarged
	case 1:
		status = patient.StatusInactive
	}
	return formschema.Values{
		"mrn":               "MRN-" + g.code(),
		"full_name":         first + " " + last,
		"birth_date":        g.randomDate(1940, 2015),
		"gender":            g.pick(genders),
		"blood_type":        g.pick(bloodTypes),
		"phone":             g.randomPhone(),
		"email":             strings.ToLower(first + "." + last + "@example.org"),
		"address":           g.pick(streets),
		"emergency_contact": g.pick(firstNames) + " " + last + " " + g.randomPhone(),
		"status":            status,
	}
}

// GenerateMachine produces a dialysis machine with some run hours.
func (g *DataGenerator) GenerateMachine() formschema.Values {
	m := machineModels[g.rng.Intn(len(machineModels))]
	status := machine.StatusAvailable
	if g.rng.Intn(8) == 0 {
		status = machine.StatusMaintenance
	}
	return formschema.Values{
		"serial":          "SN-" + g.code(),
		"model":           m.model,
		"manufacturer":    m.manufacturer,
		"location":        fmt.Sprintf("Dialysis bay %d", 1+g.rng.Intn(4)),
		"status":          status,
		"hours_used":      float64(g.rng.Intn(20000)),
		"last_service_at": g.daysAgo(180),
	}
}

// GenerateVendor produces an active supplier.
func (g *DataGenerator) GenerateVendor() formschema.Values {
	code := g.code()
	return formschema.Values{
		"name":           g.pick(vendorNames) + " " + code,
		"category":       g.pick(vendorCategories),
		"contact_person": g.pick(firstNames) + " " + g.pick(lastNames),
		"email":          "orders-" + code + "@example.com",
		"phone":          g.randomPhone(),
		"address":        g.pick(streets),
		"active":         true,
	}
}

// GenerateItem produces a stock item supplied by vendorID. Roughly one in
// five opens below its reorder level.
func (g *DataGenerator) GenerateItem(vendorID uuid.UUID) formschema.Values {
	it := stockItems[g.rng.Intn(len(stockItems))]
	reorder := 10 + g.rng.Intn(40)
	qty := reorder + g.rng.Intn(200)
	if g.rng.Intn(5) == 0 {
		qty = g.rng.Intn(reorder)
	}
	v := formschema.Values{
		"sku":           "SKU-" + g.code(),
		"name":          it.name,
		"category":      it.category,
		"unit":          it.unit,
		"quantity":      qty,
		"reorder_level": reorder,
		"vendor_id":     vendorID.String(),
		"location":      fmt.Sprintf("Store room %c", 'A'+rune(g.rng.Intn(3))),
	}
	if it.category == "medication" || it.category == "dialyzer" {
		v["expires_at"] = g.now.AddDate(0, 1+g.rng.Intn(24), 0)
	}
	return v
}

// GenerateVehicle produces an available vehicle.
func (g *DataGenerator) GenerateVehicle() formschema.Values {
	m := vehicleModels[g.rng.Intn(len(vehicleModels))]
	return formschema.Values{
		"plate":           "CC " + g.code(),
		"vehicle_type":    m.kind,
		"make_model":      m.makeModel,
		"capacity":        m.seats,
		"status":          vehicle.StatusAvailable,
		"mileage_km":      float64(5000 + g.rng.Intn(150000)),
		"last_service_at": g.daysAgo(120),
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Creator stores one row and returns its id.
type Creator func(ctx context.Context, values formschema.Values) (uuid.UUID, error)

// CreatorOf adapts a service Create method.
func CreatorOf[T any](create func(context.Context, formschema.Values) (*T, error)) Creator {
	return func(ctx context.Context, values formschema.Values) (uuid.UUID, error) {
		row, err := create(ctx, values)
		if err != nil {
			return uuid.Nil, err
		}
		return crud.IDOf(row), nil
	}
}

// Targets are the services generated rows are written to.
type Targets struct {
	Wards    Creator
	Beds     Creator
	Patients Creator
	Machines Creator
	Vendors  Creator
	Items    Creator
	Vehicles Creator
}

// Seeder writes a generated center through a set of targets.
type Seeder struct {
	targets Targets
	log     zerolog.Logger
}

// NewSeeder creates a Seeder writing to targets.
func NewSeeder(targets Targets, log zerolog.Logger) *Seeder {
	return &Seeder{targets: targets, log: log.With().Str("component", "sandbox").Logger()}
}

// Run generates rows per config. Wards come before their beds and vendors
// before their items. The first failing row stops the run; rows already
// created stay and are counted in the result.
func (s *Seeder) Run(ctx context.Context, config SeedConfig) (*SeedResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	start := time.Now()
	gen := NewDataGenerator(seed)
	result := &SeedResult{Seed: seed}

	create := func(kind string, target Creator, values formschema.Values, count *int) (uuid.UUID, error) {
		if target == nil {
			return uuid.Nil, fmt.Errorf("no target for %s", kind)
		}
		id, err := target(ctx, values)
		if err != nil {
			return uuid.Nil, fmt.Errorf("seed %s: %w", kind, err)
		}
		*count++
		return id, nil
	}

	err := func() error {
		for i := 0; i < config.Wards; i++ {
			values := gen.GenerateWard(config.BedsPerWard)
			wardID, err := create("ward", s.targets.Wards, values, &result.Wards)
			if err != nil {
				return err
			}
			kind, _ := values["ward_type"].(string)
			for n := 1; n <= config.BedsPerWard; n++ {
				if _, err := create("bed", s.targets.Beds, gen.GenerateBed(wardID, kind, n), &result.Beds); err != nil {
					return err
				}
			}
		}
		for i := 0; i < config.Patients; i++ {
			if _, err := create("patient", s.targets.Patients, gen.GeneratePatient(), &result.Patients); err != nil {
				return err
			}
		}
		for i := 0; i < config.Machines; i++ {
			if _, err := create("machine", s.targets.Machines, gen.GenerateMachine(), &result.Machines); err != nil {
				return err
			}
		}
		for i := 0; i < config.Vendors; i++ {
			vendorID, err := create("vendor", s.targets.Vendors, gen.GenerateVendor(), &result.Vendors)
			if err != nil {
				return err
			}
			for j := 0; j < config.ItemsPerVendor; j++ {
				if _, err := create("item", s.targets.Items, gen.GenerateItem(vendorID), &result.Items); err != nil {
					return err
				}
			}
		}
		for i := 0; i < config.Vehicles; i++ {
			if _, err := create("vehicle", s.targets.Vehicles, gen.GenerateVehicle(), &result.Vehicles); err != nil {
				return err
			}
		}
		return nil
	}()

	result.ElapsedMs = time.Since(start).Milliseconds()
	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Int64("seed", seed).Int("rows", result.Total()).Int64("elapsed_ms", result.ElapsedMs).Msg("demo data seeded")
	return result, err
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding to administrators over HTTP.
type SeedHandler struct {
	seeder *Seeder
	mu     sync.Mutex
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes registers POST /sandbox/seed on api.
func (h *SeedHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sandbox", auth.RequireRole(auth.RoleAdmin))
	g.POST("/seed", h.Seed)
}

// Seed runs one seeding pass. Omitted counts take their defaults.
func (h *SeedHandler) Seed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid seed configuration")
		}
	}
	if err := cfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := h.seeder.Run(c.Request().Context(), cfg)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, result)
}
