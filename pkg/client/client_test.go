package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/domain/vendor"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/formschema"
	"github.com/carecenter/dashboard/internal/platform/websocket"
)

// vendorServer serves the vendor resource. The bearer token is taken as
// the caller's role.
func vendorServer(t *testing.T) *httptest.Server {
	t.Helper()
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			ctx := auth.WithUser(c.Request().Context(), uuid.NewString(), "tester", []string{role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	vendor.NewHandler(vendor.NewService(vendor.NewMemRepo(), zerolog.Nop())).RegisterRoutes(api)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func vendors(t *testing.T, srv *httptest.Server, role string) *Resource[vendor.Vendor] {
	t.Helper()
	c, err := New(srv.URL+"/api/v1/", WithToken(role))
	if err != nil {
		t.Fatal(err)
	}
	return NewResource[vendor.Vendor](c, "vendors", vendor.Definition.Schema)
}

func TestResource_CRUD(t *testing.T) {
	srv := vendorServer(t)
	r := vendors(t, srv, auth.RoleClerk)
	ctx := context.Background()

	created, err := r.Create(ctx, formschema.Values{"name": "MedSupply Co", "category": "medical_supplies", "active": true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create(ctx, formschema.Values{"name": "Fleet Parts", "category": "transport", "active": false}); err != nil {
		t.Fatal(err)
	}

	updated, err := r.Update(ctx, created.ID, formschema.Values{"phone": "+1 555 0100"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Phone == nil || *updated.Phone != "+1 555 0100" || updated.Name != "MedSupply Co" {
		t.Errorf("updated = %+v", updated)
	}

	got, err := r.Get(ctx, created.ID)
	if err != nil || got.Category != "medical_supplies" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	page, err := r.List(ctx, datatable.Query{SortBy: "name", SortDir: datatable.Desc}, url.Values{"active": {"true"}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || len(page.Rows) != 1 || page.Rows[0].Name != "MedSupply Co" {
		t.Errorf("page = %+v", page)
	}

	if err := r.Delete(ctx, created.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("clerk delete err = %v", err)
	}
	admin := vendors(t, srv, auth.RoleAdmin)
	if err := admin.Delete(ctx, created.ID); err != nil {
		t.Fatalf("admin Delete: %v", err)
	}
	if _, err := r.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
}

func TestResource_Errors(t *testing.T) {
	srv := vendorServer(t)
	r := vendors(t, srv, auth.RoleAdmin)
	ctx := context.Background()

	_, err := r.Create(ctx, formschema.Values{"category": "food", "email": "nope"})
	ve, ok := formschema.AsValidationError(err)
	if !ok {
		t.Fatalf("err = %v, want a validation error", err)
	}
	if len(ve.Fields["name"]) == 0 || len(ve.Fields["email"]) == 0 {
		t.Errorf("fields = %v", ve.Fields)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("api error = %+v", apiErr)
	}

	if _, err := r.Create(ctx, formschema.Values{"name": "Dup", "category": "food"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(ctx, formschema.Values{"name": "Dup", "category": "food"}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate err = %v", err)
	}

	anon := vendors(t, srv, "")
	if _, err := anon.List(ctx, datatable.Query{}, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("anonymous err = %v", err)
	}
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "s3cret-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid username or password"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_at":"2030-01-01T00:00:00Z","user":{"username":"` + in["username"] + `","roles":["nurse"]}}`))
	})
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"username":"nurse.kim","roles":["nurse"]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL + "/api/v1")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := c.Login(ctx, "nurse.kim", "wrong"); !errors.Is(err, ErrUnauthorized) || !strings.Contains(err.Error(), "invalid username") {
		t.Errorf("bad login err = %v", err)
	}
	s, err := c.Login(ctx, "nurse.kim", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.User.Username != "nurse.kim" || c.Token() != "tok-1" {
		t.Errorf("session = %+v, token %q", s, c.Token())
	}
	me, err := c.Me(ctx)
	if err != nil || me.Username != "nurse.kim" {
		t.Errorf("Me = %+v, %v", me, err)
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("/api/v1"); err == nil {
		t.Error("expected an error for a relative base url")
	}
}

func TestWatch(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "Bearer nurse" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			ctx := auth.WithUser(c.Request().Context(), uuid.NewString(), "nurse1", []string{auth.RoleNurse})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	websocket.NewHandler(hub, nil, nil).RegisterRoutes(api)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	anon, _ := New(srv.URL + "/api/v1")
	if err := anon.Watch(context.Background(), nil, func(Event) error { return nil }); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous watch err = %v, want unauthorized", err)
	}

	c, _ := New(srv.URL+"/api/v1", WithToken("nurse"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Event, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- c.Watch(ctx, []string{"beds"}, func(ev Event) error {
			got <- ev
			cancel()
			return nil
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("beds") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast(websocket.Event{Type: "assign", Resource: "beds", ID: "b-1", User: "nurse1"})

	select {
	case ev := <-got:
		if ev.Type != "assign" || ev.ID != "b-1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	if err := <-errc; err != nil {
		t.Fatalf("Watch = %v, want nil after cancel", err)
	}
}
