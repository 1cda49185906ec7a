package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/config"
	"github.com/carecenter/dashboard/internal/domain/dashboard"
	"github.com/carecenter/dashboard/internal/domain/dialysis"
	"github.com/carecenter/dashboard/internal/domain/documents"
	"github.com/carecenter/dashboard/internal/domain/inventory"
	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/domain/shift"
	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/domain/vehicle"
	"github.com/carecenter/dashboard/internal/domain/vendor"
	"github.com/carecenter/dashboard/internal/domain/ward"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/formschema"
	"github.com/carecenter/dashboard/internal/platform/middleware"
	"github.com/carecenter/dashboard/internal/platform/sandbox"
	"github.com/carecenter/dashboard/internal/platform/websocket"
)

const version = "0.1.0"

// server is the assembled HTTP application.
type server struct {
	echo        *echo.Echo
	users       *user.Service
	seeder      *sandbox.Seeder
	hub         *websocket.Hub
	revocations *auth.TokenRevocationStore
}

func (s *server) Close() {
	s.hub.Close()
	s.revocations.Close()
}

// catalog lists the definition of every resource the API serves.
func catalog() *crud.Catalog {
	return crud.NewCatalog(
		patient.Definition,
		dialysis.Definition,
		ward.Definition,
		ward.BedDefinition,
		shift.Definition,
		machine.Definition,
		inventory.Definition,
		inventory.MovementDefinition,
		vehicle.Definition,
		vendor.Definition,
		user.Definition,
		documents.Definition,
	)
}

// newServer wires services and routes over st. signingKey signs and
// verifies access tokens.
func newServer(cfg *config.Config, st *storage, signingKey []byte, logger zerolog.Logger) (*server, error) {
	cat := catalog()
	applied, err := cat.ApplyOverrides(cfg.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("schema overrides: %w", err)
	}
	if len(applied) > 0 {
		logger.Info().Strs("resources", applied).Str("dir", cfg.SchemaDir).Msg("schema overrides applied")
	}
	if err := documents.SetUploadLimit(cfg.UploadLimit()); err != nil {
		return nil, err
	}
	formschema.SetLocation(cfg.Location())

	issuer, err := auth.NewIssuer(signingKey, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}
	revocations := auth.NewTokenRevocationStore(time.Minute)

	// Services
	users := user.NewService(st.users, issuer, revocations, logger)
	patients := patient.NewService(st.patients, logger)
	machines := machine.NewService(st.machines, logger)
	vendors := vendor.NewService(st.vendors, logger)
	wards := ward.NewService(st.wards, st.beds, st.patients, st.tx, logger)
	sessions := dialysis.NewService(st.sessions, dialysis.Deps{
		Patients: st.patients,
		Machines: st.machines,
		Pool:     machines,
		Staff:    st.users,
		Tx:       st.tx,
	}, logger)
	shifts := shift.NewService(st.shifts, st.users, st.wards, st.tx, logger)
	items := inventory.NewService(st.items, st.movements, st.vendors, st.tx, logger)
	vehicles := vehicle.NewService(st.vehicles, st.tx, logger)
	docs := documents.NewService(st.documents, st.blobs, cfg.UploadLimit(), logger)
	summary := dashboard.NewService(dashboard.Sources{
		Patients:  st.patients,
		Sessions:  st.sessions,
		Beds:      st.beds,
		Machines:  st.machines,
		Inventory: st.items,
		Vehicles:  st.vehicles,
	}, cfg.Location(), logger)

	// Document owners and the deletes they restrict
	docs.RegisterOwner("patients", documents.Owner(st.patients))
	docs.RegisterOwner("dialysis-sessions", documents.Owner(st.sessions))
	docs.RegisterOwner("wards", documents.Owner(st.wards))
	docs.RegisterOwner("machines", documents.Owner(st.machines))
	docs.RegisterOwner("inventory", documents.Owner(st.items))
	docs.RegisterOwner("vehicles", documents.Owner(st.vehicles))
	docs.RegisterOwner("vendors", documents.Owner(st.vendors))
	docs.RegisterOwner("users", documents.Owner(st.users))

	patients.AddDeleteGuard(wards.PatientGuard)
	patients.AddDeleteGuard(sessions.PatientGuard)
	patients.AddDeleteGuard(docs.OwnerGuard("patients"))
	machines.AddDeleteGuard(sessions.MachineGuard)
	machines.AddDeleteGuard(docs.OwnerGuard("machines"))
	vendors.AddDeleteGuard(items.VendorGuard)
	vendors.AddDeleteGuard(docs.OwnerGuard("vendors"))
	sessions.GuardDelete(docs.OwnerGuard("dialysis-sessions"))
	wards.Wards.GuardDelete(docs.OwnerGuard("wards"))
	items.GuardDelete(docs.OwnerGuard("inventory"))
	vehicles.GuardDelete(docs.OwnerGuard("vehicles"))
	users.GuardDelete(docs.OwnerGuard("users"))

	seeder := sandbox.NewSeeder(sandbox.Targets{
		Wards:    sandbox.CreatorOf(wards.Wards.Create),
		Beds:     sandbox.CreatorOf(wards.Beds.Create),
		Patients: sandbox.CreatorOf(patients.Create),
		Machines: sandbox.CreatorOf(machines.Create),
		Vendors:  sandbox.CreatorOf(vendors.Create),
		Items:    sandbox.CreatorOf(items.Create),
		Vehicles: sandbox.CreatorOf(vehicles.Create),
	}, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Disposition", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimitBytes(), cfg.UploadLimit()))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, streamsBody))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:      cfg.JWTIssuer,
		SigningKey:  signingKey,
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development auth: requests without a token run as administrator")
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger, "/api/v1"))

	// Change feed
	hub := websocket.NewHub(logger)
	e.Use(websocket.Changes(hub, "/api/v1", func(resource string) bool {
		_, ok := cat.Get(resource)
		return ok
	}, logger))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.pinger))

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	loginLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: 0.2,
		BurstSize:         5,
		KeyFunc:           middleware.ByIP,
	})

	user.NewHandler(users).RegisterRoutes(apiV1, loginLimit)
	patient.NewHandler(patients).RegisterRoutes(apiV1)
	dialysis.NewHandler(sessions).RegisterRoutes(apiV1)
	ward.NewHandler(wards).RegisterRoutes(apiV1)
	shift.NewHandler(shifts).RegisterRoutes(apiV1)
	machine.NewHandler(machines).RegisterRoutes(apiV1)
	inventory.NewHandler(items).RegisterRoutes(apiV1)
	vehicle.NewHandler(vehicles).RegisterRoutes(apiV1)
	vendor.NewHandler(vendors).RegisterRoutes(apiV1)
	documents.NewHandler(docs).RegisterRoutes(apiV1)
	dashboard.NewHandler(summary).RegisterRoutes(apiV1)
	crud.NewSchemaHandler(cat).RegisterRoutes(apiV1)
	websocket.NewHandler(hub, readable(cat), cfg.CORSOrigins).RegisterRoutes(apiV1)
	if cfg.IsDev() {
		sandbox.NewSeedHandler(seeder).RegisterRoutes(apiV1)
	}

	return &server{echo: e, users: users, seeder: seeder, hub: hub, revocations: revocations}, nil
}

// readable reports whether roles may read a resource of cat.
func readable(cat *crud.Catalog) func(roles []string, resource string) bool {
	return func(roles []string, resource string) bool {
		d, ok := cat.Get(resource)
		return ok && (len(d.ReadRoles) == 0 || auth.HasAnyRole(roles, d.ReadRoles...))
	}
}

// streamsBody reports requests that move document content, which may take
// longer than the request timeout on slow links.
func streamsBody(c echo.Context) bool {
	if !strings.HasPrefix(c.Path(), "/api/v1/documents") {
		return false
	}
	m := c.Request().Method
	return m == http.MethodPost || m == http.MethodPut || strings.HasSuffix(c.Path(), "/download")
}

// bootstrapAdmin creates the first administrator when the user store is
// empty.
func bootstrapAdmin(ctx context.Context, users *user.Service, username, password string, logger zerolog.Logger) error {
	if username == "" {
		username = "admin"
	}
	generated := password == ""
	if generated {
		p, err := randomHex(12)
		if err != nil {
			return err
		}
		password = p
	}
	created, err := users.Bootstrap(ctx, username, password)
	if err != nil || !created {
		return err
	}
	ev := logger.Warn().Str("username", username)
	if generated {
		ev = ev.Str("password", password)
	}
	ev.Msg("no users found, administrator created; change this password")
	return nil
}
