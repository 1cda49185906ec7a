package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantPage int
		wantSize int
	}{
		{"defaults", "", 1, DefaultPageSize},
		{"page and size", "page=3&page_size=10", 3, 10},
		{"size capped", "page_size=1000", 1, MaxPageSize},
		{"negative page", "page=-2", 1, DefaultPageSize},
		{"legacy limit offset", "limit=10&offset=20", 3, 10},
		{"garbage", "page=abc&page_size=xyz", 1, DefaultPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			p := FromContext(c)
			if p.Page != tt.wantPage || p.PageSize != tt.wantSize {
				t.Errorf("FromContext() = %+v, want page=%d size=%d", p, tt.wantPage, tt.wantSize)
			}
		})
	}
}

func TestPageMath(t *testing.T) {
	p := New(2, 10)
	if p.Offset() != 10 {
		t.Errorf("Offset() = %d, want 10", p.Offset())
	}
	if got := p.PageCount(25); got != 3 {
		t.Errorf("PageCount(25) = %d, want 3", got)
	}
	if got := p.PageCount(0); got != 1 {
		t.Errorf("PageCount(0) = %d, want 1", got)
	}
	if !p.HasNext(25) || p.HasNext(20) {
		t.Error("HasNext mismatch")
	}
	if !p.HasPrevious() || New(1, 10).HasPrevious() {
		t.Error("HasPrevious mismatch")
	}
	if got := New(9, 10).Clamp(25); got.Page != 3 {
		t.Errorf("Clamp() page = %d, want 3", got.Page)
	}
	start, end := New(3, 10).Bounds(25)
	if start != 20 || end != 25 {
		t.Errorf("Bounds() = %d,%d want 20,25", start, end)
	}
}

func TestSQL(t *testing.T) {
	clause, args := New(3, 10).SQL(4)
	if clause != "LIMIT $4 OFFSET $5" {
		t.Errorf("SQL() = %q", clause)
	}
	if args[0] != 10 || args[1] != 20 {
		t.Errorf("args = %v", args)
	}
}
