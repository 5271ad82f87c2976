package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleProvider))
	g.GET("/appointments", h.ListAppointments)
	g.GET("/appointments/:id", h.GetAppointment)
	g.POST("/appointments", h.CreateAppointment)
	g.PUT("/appointments/:id", h.UpdateAppointment)
	g.PATCH("/appointments/:id", h.UpdateAppointment)
	g.DELETE("/appointments/:id", h.DeleteAppointment)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var p Proposal
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	allow, err := allowOverlap(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), p, allow)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Proposal
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	allow, err := allowOverlap(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Update(c.Request().Context(), id, p, allow)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return writeError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	ids := map[string]**int64{
		"provider": &f.ProviderID,
		"patient":  &f.PatientID,
		"location": &f.LocationID,
	}
	for name, dst := range ids {
		if v := c.QueryParam(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
			}
			*dst = &n
		}
	}
	f.Office = c.QueryParam("office")
	f.Search = c.QueryParam("search")
	dates := map[string]**civil.Date{
		"date_from": &f.DateFrom,
		"date_to":   &f.DateTo,
	}
	for name, dst := range dates {
		if v := c.QueryParam(name); v != "" {
			d, err := civil.ParseDate(v)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
			}
			*dst = &d
		}
	}
	if v := c.QueryParam("date"); v != "" {
		d, err := civil.ParseDate(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
		f.DateFrom, f.DateTo = &d, &d
	}
	if v := c.QueryParam("is_block"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid is_block")
		}
		f.IsBlock = &b
	}
	return f, nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func allowOverlap(c echo.Context) (bool, error) {
	v := c.QueryParam("allow_overlap")
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "invalid allow_overlap")
	}
	return b, nil
}

// writeError maps service errors to HTTP errors. Rejections carry every
// violation; a TIME_OVERLAP primary reason is a conflict.
func writeError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if re, ok := AsRejection(err); ok {
		status := http.StatusBadRequest
		if re.Code() == CodeTimeOverlap {
			status = http.StatusConflict
		}
		return echo.NewHTTPError(status, map[string]any{
			"code":    re.Code(),
			"message": re.Violations[0].Message,
			"errors":  re.Violations,
		}).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, map[string]any{
		"code":    CodeStorageError,
		"message": "an unexpected error occurred",
	}).SetInternal(err)
}
