package location

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the location and business settings endpoints.
// Reads are open to any authenticated caller, writes need staff.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/locations", h.ListLocations)
	api.GET("/locations/:id", h.GetLocation)
	api.GET("/business/settings", h.GetBusinessSettings)

	write := api.Group("", auth.RequireStaff())
	write.POST("/locations", h.CreateLocation)
	write.PUT("/locations/:id", h.UpdateLocation)
	write.PATCH("/locations/:id", h.UpdateLocation)
	write.PATCH("/locations/:id/hours", h.UpdateHours)
	write.DELETE("/locations/:id", h.DeleteLocation)
	write.PATCH("/business/settings", h.UpdateBusinessSettings)
}

type hoursRequest struct {
	Weekday string `json:"weekday" validate:"required,oneof=mon tue wed thu fri sat sun"`
	Open    bool   `json:"open"`
	Start   string `json:"start" validate:"required,clock"`
	End     string `json:"end" validate:"required,clock"`
}

func (r hoursRequest) toHours() (Hours, error) {
	start, err := scheduling.ParseClock(r.Start)
	if err != nil {
		return Hours{}, err
	}
	end, err := scheduling.ParseClock(r.End)
	if err != nil {
		return Hours{}, err
	}
	return Hours{Weekday: r.Weekday, Open: r.Open, Start: start, End: end}, nil
}

type createLocationRequest struct {
	Name     string         `json:"name" validate:"required,max=255"`
	Slug     string         `json:"slug" validate:"max=50"`
	Phone    *string        `json:"phone" validate:"omitempty,max=50"`
	Email    *string        `json:"email" validate:"omitempty,email"`
	Address  *string        `json:"address"`
	IsActive *bool          `json:"is_active"`
	Hours    []hoursRequest `json:"hours" validate:"dive"`
}

type hoursUpdateRequest struct {
	Hours []hoursRequest `json:"hours" validate:"required,dive"`
}

func parseHours(in []hoursRequest) ([]Hours, error) {
	out := make([]Hours, 0, len(in))
	for _, hr := range in {
		h, err := hr.toHours()
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		out = append(out, h)
	}
	return out, nil
}

func (h *Handler) CreateLocation(c echo.Context) error {
	var req createLocationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	hours, err := parseHours(req.Hours)
	if err != nil {
		return err
	}
	loc := &Location{
		Name:     req.Name,
		Slug:     req.Slug,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
		IsActive: req.IsActive == nil || *req.IsActive,
		Hours:    hours,
	}
	if err := h.svc.CreateLocation(c.Request().Context(), loc); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, loc)
}

func (h *Handler) ListLocations(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	items, err := h.svc.ListLocations(c.Request().Context(), activeOnly)
	if err != nil {
		return mapError(err)
	}
	if items == nil {
		items = []*Location{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetLocation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	loc, err := h.svc.GetLocation(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p LocationPatch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	loc, err := h.svc.UpdateLocation(c.Request().Context(), id, p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) UpdateHours(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req hoursUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected 'hours' to be a list")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	hours, err := parseHours(req.Hours)
	if err != nil {
		return err
	}
	loc, err := h.svc.UpdateHours(c.Request().Context(), id, hours)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) DeleteLocation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLocation(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetBusinessSettings(c echo.Context) error {
	bs, err := h.svc.GetBusinessSettings(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, bs)
}

func (h *Handler) UpdateBusinessSettings(c echo.Context) error {
	var p BusinessSettingsPatch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	bs, err := h.svc.UpdateBusinessSettings(c.Request().Context(), p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, bs)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "location not found")
	case errors.Is(err, ErrInUse):
		return echo.NewHTTPError(http.StatusConflict, map[string]any{
			"code":    CodeLocationInUse,
			"message": "Cannot delete this location because there are existing appointments referencing it.",
		})
	case errors.Is(err, ErrSlugTaken):
		return echo.NewHTTPError(http.StatusConflict, "slug already in use")
	case errors.Is(err, ErrInvalidHours):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "an unexpected error occurred").SetInternal(err)
}
