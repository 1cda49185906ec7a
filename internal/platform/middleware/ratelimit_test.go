package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/auth"
)

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	err := handler(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
	retryVal, parseErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if parseErr != nil || retryVal < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	as := func(user string) echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithUser(req.Context(), user, user, nil))
		return e.NewContext(req, httptest.NewRecorder())
	}

	if err := handler(as("user-a")); err != nil {
		t.Fatalf("user-a first request: expected no error, got %v", err)
	}
	if err := handler(as("user-a")); err == nil {
		t.Fatal("user-a second request: expected rate limit error")
	}
	if err := handler(as("user-b")); err != nil {
		t.Fatalf("user-b first request: expected no error, got %v", err)
	}
}

func TestRateLimit_CustomKey(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, KeyFunc: ByIP})(func(c echo.Context) error {
		return nil
	})
	// both requests share the httptest remote address
	for i, user := range []string{"user-a", "user-b"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithUser(req.Context(), user, user, nil))
		err := handler(e.NewContext(req, httptest.NewRecorder()))
		if i == 0 && err != nil {
			t.Fatalf("first request: unexpected error %v", err)
		}
		if i == 1 && err == nil {
			t.Fatal("second request from the same IP must be limited")
		}
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	b := newTokenBucket(0, 1)
	b.allow(time.Now())
	if ra := b.retryAfter(); ra != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", ra)
	}
}

func TestTokenBucket_Refills(t *testing.T) {
	b := newTokenBucket(2, 1)
	now := time.Now()
	if !b.allow(now) {
		t.Fatal("first token must be available")
	}
	if b.allow(now) {
		t.Fatal("bucket must be empty")
	}
	if !b.allow(now.Add(600 * time.Millisecond)) {
		t.Error("bucket must refill at the configured rate")
	}
}

func TestRateLimiterStore_Sweep(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	b1 := store.getBucket("key1")
	if b2 := store.getBucket("key1"); b1 != b2 {
		t.Error("expected same bucket instance for same key")
	}
	if b3 := store.getBucket("key2"); b1 == b3 {
		t.Error("expected different bucket for different key")
	}

	store.sweep(time.Now().Add(2 * bucketIdle))
	store.mu.RLock()
	n := len(store.buckets)
	store.mu.RUnlock()
	if n != 0 {
		t.Errorf("expected idle buckets to be swept, %d left", n)
	}
}
