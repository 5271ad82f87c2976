package validate

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

type hoursRequest struct {
	Weekday string `json:"weekday" validate:"required,oneof=mon tue wed thu fri sat sun"`
	Start   string `json:"start" validate:"required,clock"`
	Color   string `json:"color_code" validate:"omitempty,hexcolor6"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	if err := v.Validate(&hoursRequest{Weekday: "mon", Start: "08:00", Color: "#A1B2C3"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_FieldErrorsUseJSONNames(t *testing.T) {
	v := New()
	err := v.Validate(&hoursRequest{Weekday: "funday", Start: "25:00", Color: "red"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
	body, ok := he.Message.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map message, got %T", he.Message)
	}
	fields, ok := body["errors"].([]FieldError)
	if !ok {
		t.Fatalf("expected []FieldError, got %T", body["errors"])
	}
	got := map[string]string{}
	for _, f := range fields {
		got[f.Field] = f.Rule
	}
	want := map[string]string{"weekday": "oneof", "start": "clock", "color_code": "hexcolor6"}
	for field, rule := range want {
		if got[field] != rule {
			t.Errorf("field %s: expected rule %s, got %q", field, rule, got[field])
		}
	}
}
