package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func runHealth(t *testing.T, p Pinger) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := HealthHandler(p)(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_Memory(t *testing.T) {
	code, body := runHealth(t, nil)
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["storage"] != "memory" || body["status"] != "healthy" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHealthHandler_Healthy(t *testing.T) {
	code, body := runHealth(t, fakePinger{})
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	code, body := runHealth(t, fakePinger{err: errors.New("connection refused")})
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body["status"] != "unhealthy" || body["error"] != "connection refused" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestPoolStats_JSON(t *testing.T) {
	stats := &PoolStats{TotalConns: 10, IdleConns: 5, MaxConns: 20, AcquireDuration: "1.5s", Healthy: true}
	raw, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["total_conns"].(float64) != 10 || m["acquire_duration"] != "1.5s" || m["healthy"] != true {
		t.Errorf("unexpected JSON: %s", raw)
	}
}
