package demo

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/lock"
)

// Resetter is implemented by *Seeder.
type Resetter interface {
	ResetAndSeed(ctx context.Context, today civil.Date) (*SeedSummary, error)
}

type Handler struct {
	seeder  Resetter
	today   func() civil.Date
	enabled bool
}

// NewHandler serves the reset endpoint. today supplies the clinic calendar
// date; a disabled handler answers 404.
func NewHandler(seeder Resetter, today func() civil.Date, enabled bool) *Handler {
	return &Handler{seeder: seeder, today: today, enabled: enabled}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/demo/reset", h.Reset, auth.RequireStaff())
}

func (h *Handler) Reset(c echo.Context) error {
	if !h.enabled {
		return echo.NewHTTPError(http.StatusNotFound, "demo reset is disabled")
	}
	sum, err := h.seeder.ResetAndSeed(c.Request().Context(), h.today())
	if errors.Is(err, lock.ErrLocked) {
		return echo.NewHTTPError(http.StatusConflict, "a demo reset is already running")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "demo reset failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, sum)
}
