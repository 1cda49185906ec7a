// Package dashboard computes the landing page summary of the care center.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/carecenter/dashboard/internal/domain/dialysis"
	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/domain/vehicle"
	"github.com/carecenter/dashboard/internal/domain/ward"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
)

// Counter counts the rows of one resource matching list params. Every
// crud repository is a Counter.
type Counter interface {
	Count(ctx context.Context, p crud.ListParams) (int, error)
}

// Sources are the repositories the summary reads.
type Sources struct {
	Patients  Counter
	Sessions  Counter
	Beds      Counter
	Machines  Counter
	Inventory Counter
	Vehicles  Counter
}

type Summary struct {
	GeneratedAt       time.Time      `json:"generated_at"`
	Day               string         `json:"day"`
	ActivePatients    int            `json:"active_patients"`
	SessionsToday     map[string]int `json:"sessions_today"`
	Beds              map[string]int `json:"beds"`
	Machines          map[string]int `json:"machines"`
	LowStockItems     int            `json:"low_stock_items"`
	VehiclesAvailable int            `json:"vehicles_available"`
}

// maxConcurrentCounts bounds the queries one summary runs at a time.
const maxConcurrentCounts = 6

type Service struct {
	src Sources
	loc *time.Location
	now func() time.Time
	log zerolog.Logger
}

// NewService returns a summary service whose "today" is the calendar day
// in loc. A nil loc means UTC.
func NewService(src Sources, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{src: src, loc: loc, now: time.Now, log: log.With().Str("component", "dashboard").Logger()}
}

type count struct {
	name   string
	src    Counter
	params crud.ListParams
	store  func(n int)
}

func byStatus(status string) crud.ListParams {
	return crud.ListParams{Filters: filterbar.Values{"status": {Text: status}}}
}

// Summary runs every count concurrently and fails with the first error.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.loc)

	out := &Summary{
		GeneratedAt:   now,
		Day:           today.Format("2006-01-02"),
		SessionsToday: make(map[string]int),
		Beds:          make(map[string]int),
		Machines:      make(map[string]int),
	}
	var mu sync.Mutex
	into := func(m map[string]int, key string) func(int) {
		return func(n int) {
			mu.Lock()
			m[key] = n
			mu.Unlock()
		}
	}

	counts := []count{
		{"patients", s.src.Patients, byStatus(patient.StatusActive), func(n int) { out.ActivePatients = n }},
		{"low stock", s.src.Inventory, crud.ListParams{Filters: filterbar.Values{"low_stock": {Bool: true}}}, func(n int) { out.LowStockItems = n }},
		{"vehicles", s.src.Vehicles, byStatus(vehicle.StatusAvailable), func(n int) { out.VehiclesAvailable = n }},
	}
	for _, st := range []string{dialysis.StatusScheduled, dialysis.StatusInProgress, dialysis.StatusCompleted, dialysis.StatusCancelled} {
		p := crud.ListParams{Filters: filterbar.Values{"status": {Text: st}, "day": {Day: today}}}
		counts = append(counts, count{"sessions " + st, s.src.Sessions, p, into(out.SessionsToday, st)})
	}
	for _, st := range []string{ward.BedAvailable, ward.BedOccupied, ward.BedMaintenance} {
		counts = append(counts, count{"beds " + st, s.src.Beds, byStatus(st), into(out.Beds, st)})
	}
	for _, st := range []string{machine.StatusAvailable, machine.StatusInUse, machine.StatusMaintenance, machine.StatusRetired} {
		counts = append(counts, count{"machines " + st, s.src.Machines, byStatus(st), into(out.Machines, st)})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCounts)
	for _, c := range counts {
		c := c
		g.Go(func() error {
			n, err := c.src.Count(gctx, c.params)
			if err != nil {
				return fmt.Errorf("count %s: %w", c.name, err)
			}
			c.store(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Msg("dashboard summary failed")
		return nil, err
	}
	return out, nil
}
