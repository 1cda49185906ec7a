package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 8)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
	}
	return Event{}
}

func silent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("client %s received %s", c.ID, data)
	default:
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// Hub
// ---------------------------------------------------------------------------

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c1", "patients")

	hub.Register(c)
	if hub.ClientCount() != 1 || hub.TopicCount("patients") != 1 {
		t.Fatalf("clients = %d, patients subscribers = %d", hub.ClientCount(), hub.TopicCount("patients"))
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 || hub.TopicCount("patients") != 0 {
		t.Fatalf("clients = %d after unregister", hub.ClientCount())
	}
	if _, ok := <-c.Send; ok {
		t.Fatal("Send must be closed after unregister")
	}
}

func TestHub_BroadcastByResource(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	patients := newClient("patients", "patients")
	beds := newClient("beds", "beds")
	everything := newClient("all", AllResources)
	for _, c := range []*Client{patients, beds, everything} {
		hub.Register(c)
	}

	ev := Event{Type: "created", Resource: "patients", ID: "p-1", User: "admin", At: time.Unix(0, 0).UTC()}
	hub.Broadcast(ev)

	if diff := cmp.Diff(ev, receive(t, patients)); diff != "" {
		t.Errorf("patients subscriber (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ev, receive(t, everything)); diff != "" {
		t.Errorf("wildcard subscriber (-want +got):\n%s", diff)
	}
	silent(t, beds)
}

func TestHub_BroadcastOncePerClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("both", "vendors", AllResources)
	hub.Register(c)

	hub.Broadcast(Event{Type: "deleted", Resource: "vendors"})
	receive(t, c)
	silent(t, c)
}

func TestHub_BroadcastRespectsAllowed(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	clerk := newClient("clerk", AllResources)
	clerk.Allowed = func(resource string) bool { return resource != "users" }
	hub.Register(clerk)

	hub.Broadcast(Event{Type: "created", Resource: "users"})
	silent(t, clerk)
	hub.Broadcast(Event{Type: "created", Resource: "vehicles"})
	if ev := receive(t, clerk); ev.Resource != "vehicles" {
		t.Fatalf("resource = %q", ev.Resource)
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{"beds"}, Send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast(Event{Type: "assign", Resource: "beds"})
	hub.Broadcast(Event{Type: "release", Resource: "beds"})

	if ev := receive(t, c); ev.Type != "assign" {
		t.Fatalf("type = %q, want the first event", ev.Type)
	}
	silent(t, c)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{"wards", "beds", "wards", ""}})
	if diff := cmp.Diff([]string{"wards", "beds"}, c.Topics); diff != "" {
		t.Fatalf("topics (-want +got):\n%s", diff)
	}
	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"wards"}})
	if hub.TopicCount("wards") != 0 || hub.TopicCount("beds") != 1 {
		t.Fatalf("wards = %d, beds = %d", hub.TopicCount("wards"), hub.TopicCount("beds"))
	}
	hub.ProcessMessage(c, ClientMessage{Action: "shout", Topics: []string{"wards"}})
	if hub.TopicCount("wards") != 0 {
		t.Fatal("unknown actions must be ignored")
	}
}

func TestHub_ConcurrentUse(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newClient("c", "machines")
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			_ = hub.Publish(context.Background(), Event{Type: "updated", Resource: "machines"})
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Fatalf("clients = %d", hub.ClientCount())
	}
}

// ---------------------------------------------------------------------------
// Changes middleware
// ---------------------------------------------------------------------------

func TestEventFor(t *testing.T) {
	id := "0b8f8a8e-6f7e-4f4b-9a51-3f3e6a2b1c10"
	cases := []struct {
		method, path string
		want         Event
		ok           bool
	}{
		{http.MethodPost, "patients", Event{Type: "created", Resource: "patients"}, true},
		{http.MethodPut, "patients/" + id, Event{Type: "updated", Resource: "patients", ID: id}, true},
		{http.MethodPatch, "patients/" + id, Event{Type: "updated", Resource: "patients", ID: id}, true},
		{http.MethodDelete, "vendors/" + id, Event{Type: "deleted", Resource: "vendors", ID: id}, true},
		{http.MethodPost, "dialysis-sessions/" + id + "/start", Event{Type: "start", Resource: "dialysis-sessions", ID: id}, true},
		{http.MethodPost, "auth/login", Event{}, false},
		{http.MethodPost, "beds/" + id + "/assign/extra", Event{}, false},
		{http.MethodDelete, "patients", Event{}, false},
	}
	for _, tc := range cases {
		got, ok := eventFor(tc.method, tc.path)
		if ok != tc.ok {
			t.Errorf("%s %s: ok = %v, want %v", tc.method, tc.path, ok, tc.ok)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%s %s (-want +got):\n%s", tc.method, tc.path, diff)
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestChanges(t *testing.T) {
	rec := &recorder{}
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), "u-1", "nurse1", []string{auth.RoleNurse})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	e.Use(Changes(rec, "/api/v1", func(r string) bool { return r != "auth" }, zerolog.Nop()))
	e.POST("/api/v1/patients", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
	e.POST("/api/v1/vehicles", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid")
	})
	e.POST("/api/v1/auth/logout", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/api/v1/patients", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/patients"},
		{http.MethodPost, "/api/v1/vehicles"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/patients"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	want := []Event{{Type: "created", Resource: "patients", User: "nurse1"}}
	if diff := cmp.Diff(want, rec.events, cmpopts.IgnoreFields(Event{}, "At")); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

func feedServer(t *testing.T, roles []string) (*Hub, string) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	visible := func(have []string, resource string) bool {
		return resource != "users" || auth.HasAnyRole(have, auth.RoleAdmin)
	}
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), "u-1", "tester", roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(hub, visible, []string{"http://localhost:3000"}).RegisterRoutes(api)

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
}

func readEvent(t *testing.T, conn *gorillawebsocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestHandler_Feed(t *testing.T) {
	hub, url := feedServer(t, []string{auth.RoleClerk})

	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(url+"?topics=patients,users", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	waitFor(t, "patients subscriber", func() bool { return hub.TopicCount("patients") == 1 })

	hub.Broadcast(Event{Type: "created", Resource: "users"})
	hub.Broadcast(Event{Type: "created", Resource: "patients", ID: "p-1"})
	if ev := readEvent(t, conn); ev.Resource != "patients" || ev.ID != "p-1" {
		t.Fatalf("event = %+v, users changes must not reach a clerk", ev)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"beds"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, "beds subscriber", func() bool { return hub.TopicCount("beds") == 1 })
	hub.Broadcast(Event{Type: "release", Resource: "beds"})
	if ev := readEvent(t, conn); ev.Type != "release" {
		t.Fatalf("event = %+v", ev)
	}

	conn.Close()
	waitFor(t, "disconnect", func() bool { return hub.ClientCount() == 0 })
}

func TestHandler_DefaultsToAllResources(t *testing.T) {
	hub, url := feedServer(t, []string{auth.RoleAdmin})
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "wildcard subscriber", func() bool { return hub.TopicCount(AllResources) == 1 })

	hub.Broadcast(Event{Type: "created", Resource: "users"})
	if ev := readEvent(t, conn); ev.Resource != "users" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	_, url := feedServer(t, []string{auth.RoleAdmin})
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("dial from a foreign origin must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %v", resp)
	}
}

func TestHandler_RequiresUpgrade(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop()), nil, nil).RegisterRoutes(e.Group("/api/v1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	if rec.Code < 400 {
		t.Fatalf("plain GET = %d, want an error", rec.Code)
	}
}
