package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		target string
		limit  int
		offset int
	}{
		{"/", DefaultLimit, 0},
		{"/?limit=50&offset=10", 50, 10},
		{"/?limit=500", MaxLimit, 0},
		{"/?limit=-3&offset=-1", DefaultLimit, 0},
		{"/?limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.target)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("%s: expected %d/%d, got %d/%d", tt.target, tt.limit, tt.offset, p.Limit, p.Offset)
		}
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		total, limit, offset int
		start, end           int
	}{
		{10, 3, 0, 0, 3},
		{10, 3, 9, 9, 10},
		{10, 3, 10, 10, 10},
		{0, 20, 0, 0, 0},
	}
	for _, tt := range tests {
		s, e := Window(tt.total, tt.limit, tt.offset)
		if s != tt.start || e != tt.end {
			t.Errorf("Window(%d,%d,%d): expected [%d,%d), got [%d,%d)", tt.total, tt.limit, tt.offset, tt.start, tt.end, s, e)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 5, 1, 3)
	if !r.HasMore {
		t.Error("expected more pages")
	}
	if r = NewResponse([]string{"a"}, 5, 1, 4); r.HasMore {
		t.Error("expected the last page")
	}
}
