package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=0", DefaultLimit, 0},
		{"?limit=-5&offset=-1", DefaultLimit, 0},
		{"?limit=100000", MaxLimit, 0},
		{"?limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("%q: got limit=%d offset=%d, want %d/%d", tt.query, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]int{1, 2}, 5, Params{Limit: 2, Offset: 2})
	if !resp.HasMore {
		t.Error("expected more results after offset 2 of 5")
	}
	resp = NewResponse([]int{5}, 5, Params{Limit: 2, Offset: 4})
	if resp.HasMore {
		t.Error("expected no more results on the last page")
	}
	if resp.Total != 5 || resp.Limit != 2 || resp.Offset != 4 {
		t.Errorf("unexpected response envelope: %+v", resp)
	}
}
