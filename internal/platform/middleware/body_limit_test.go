package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func expect413(t *testing.T, err error) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", httpErr.Code)
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"mrn":"A1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if len(b) == 0 {
			t.Error("expected non-empty body")
		}
		called = true
		return c.NoContent(http.StatusCreated)
	}

	if err := BodyLimit(1<<20, 10<<20)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestBodyLimit_RejectsOversizedBody_ContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	req.Header.Set("Content-Type", "application/json")
	c := e.NewContext(req, httptest.NewRecorder())

	handler := func(c echo.Context) error {
		t.Error("handler should not be called when body exceeds limit")
		return nil
	}
	expect413(t, BodyLimit(1024, 10<<20)(handler)(c))
}

func TestBodyLimit_UsesUploadLimitForMultipart(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := BodyLimit(1024, 10<<20)(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called for an upload within the upload limit")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(bytes.Repeat([]byte("x"), 4096)))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	c = e.NewContext(req, httptest.NewRecorder())
	expect413(t, BodyLimit(1024, 2048)(func(c echo.Context) error { return nil })(c))
}

func TestBodyLimit_SkipsNilBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := BodyLimit(1, 1)(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	if err != nil || !called {
		t.Errorf("expected GET without body to pass, err=%v called=%v", err, called)
	}
}

func TestBodyLimit_EnforcesLimitDuringRead(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", bytes.NewReader(bytes.Repeat([]byte("a"), 1024)))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit(512, 10<<20)(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})(c)
	expect413(t, err)
}
