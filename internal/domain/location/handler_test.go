package location

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/validate"
)

func newTestHandler() (*Handler, *echo.Echo, *fakeUsage) {
	svc, _, usage := newTestService()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(svc), e, usage
}

func request(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func createNorth(t *testing.T, h *Handler, e *echo.Echo) *Location {
	t.Helper()
	c, rec := request(e, http.MethodPost, `{"name":"North Clinic","slug":"north"}`)
	if err := h.CreateLocation(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	var loc Location
	if err := json.Unmarshal(rec.Body.Bytes(), &loc); err != nil {
		t.Fatal(err)
	}
	return &loc
}

func TestHandler_CreateLocation(t *testing.T) {
	h, e, _ := newTestHandler()
	c, rec := request(e, http.MethodPost, `{"name":"North Clinic","hours":[{"weekday":"sat","open":false,"start":"08:00","end":"12:00"}]}`)
	if err := h.CreateLocation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["slug"] != "north-clinic" || body["is_active"] != true {
		t.Errorf("unexpected body: %v", body)
	}
	hours := body["hours"].([]any)
	if len(hours) != 1 {
		t.Fatalf("expected the submitted hours row, got %d", len(hours))
	}
	if hours[0].(map[string]any)["start"] != "08:00:00" {
		t.Errorf("unexpected start: %v", hours[0])
	}
}

func TestHandler_CreateLocation_Validation(t *testing.T) {
	h, e, _ := newTestHandler()
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"slug":"x"}`},
		{"bad clock", `{"name":"A","hours":[{"weekday":"mon","open":true,"start":"8am","end":"17:00"}]}`},
		{"bad weekday", `{"name":"A","hours":[{"weekday":"monday","open":true,"start":"08:00","end":"17:00"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := request(e, http.MethodPost, tt.body)
			err := h.CreateLocation(c)
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %v", err)
			}
		})
	}
}

func TestHandler_CreateLocation_SlugTaken(t *testing.T) {
	h, e, _ := newTestHandler()
	createNorth(t, h, e)
	c, _ := request(e, http.MethodPost, `{"name":"Other","slug":"north"}`)
	err := h.CreateLocation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_UpdateHours_Invalid(t *testing.T) {
	h, e, _ := newTestHandler()
	loc := createNorth(t, h, e)
	c, _ := request(e, http.MethodPatch, `{"hours":[{"weekday":"mon","open":true,"start":"17:00","end":"08:00"}]}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(loc.ID, 10))
	err := h.UpdateHours(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_UpdateHours(t *testing.T) {
	h, e, _ := newTestHandler()
	loc := createNorth(t, h, e)
	c, rec := request(e, http.MethodPatch, `{"hours":[{"weekday":"sun","open":false,"start":"08:00","end":"17:00"}]}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(loc.ID, 10))
	if err := h.UpdateHours(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out Location
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Day("sun").Open {
		t.Error("expected sunday closed")
	}
	if !out.Day("mon").Open {
		t.Error("expected monday untouched")
	}
}

func TestHandler_DeleteLocation_InUse(t *testing.T) {
	h, e, usage := newTestHandler()
	loc := createNorth(t, h, e)
	usage.counts["north"] = 1

	c, _ := request(e, http.MethodDelete, "")
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(loc.ID, 10))
	err := h.DeleteLocation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	if he.Message.(map[string]any)["code"] != CodeLocationInUse {
		t.Errorf("expected LOCATION_IN_USE, got %v", he.Message)
	}

	usage.counts["north"] = 0
	c, rec := request(e, http.MethodDelete, "")
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(loc.ID, 10))
	if err := h.DeleteLocation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_GetLocation_NotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := request(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues("99")
	err := h.GetLocation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_BusinessSettings(t *testing.T) {
	h, e, _ := newTestHandler()
	c, rec := request(e, http.MethodPatch, `{"name":"Demo Clinic"}`)
	if err := h.UpdateBusinessSettings(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var bs BusinessSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &bs); err != nil {
		t.Fatal(err)
	}
	if bs.Name == nil || *bs.Name != "Demo Clinic" || !bs.ShowNameInNav {
		t.Errorf("unexpected settings: %+v", bs)
	}
}
