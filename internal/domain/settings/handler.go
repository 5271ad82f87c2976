package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/domain/location"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/platform/auth"
)

// LocationLister supplies the locations projected into the settings payload.
type LocationLister interface {
	ListLocations(ctx context.Context, activeOnly bool) ([]*location.Location, error)
}

type Handler struct {
	store     *Store
	locations LocationLister
}

func NewHandler(store *Store, locations LocationLister) *Handler {
	return &Handler{store: store, locations: locations}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/schedule-settings", h.Get)
	api.PUT("/schedule-settings", h.Update, auth.RequireStaff())
}

type dayHours struct {
	Open  bool   `json:"open"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type settingsResponse struct {
	ID               int                            `json:"id"`
	AppointmentTypes []scheduling.AppointmentType   `json:"appointment_types"`
	BlockReasons     []scheduling.AppointmentType   `json:"block_reasons"`
	UpdatedAt        time.Time                      `json:"updated_at"`
	BusinessHours    map[string]map[string]dayHours `json:"business_hours"`
	DynamicLocations []*location.Location           `json:"dynamic_locations"`
}

func hhmm(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// businessHours projects location hours keyed by slug then weekday. Days
// without a stored row report the default open day.
func businessHours(locs []*location.Location) map[string]map[string]dayHours {
	out := make(map[string]map[string]dayHours, len(locs))
	for _, l := range locs {
		week := make(map[string]dayHours, len(scheduling.Weekdays))
		for _, wd := range scheduling.Weekdays {
			d := l.Day(wd)
			week[wd] = dayHours{Open: d.Open, Start: hhmm(d.Start), End: hhmm(d.End)}
		}
		out[l.Slug] = week
	}
	return out
}

func (h *Handler) respond(c echo.Context, st Settings) error {
	locs, err := h.locations.ListLocations(c.Request().Context(), true)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "an unexpected error occurred").SetInternal(err)
	}
	if locs == nil {
		locs = []*location.Location{}
	}
	types := st.AppointmentTypes
	if types == nil {
		types = []scheduling.AppointmentType{}
	}
	return c.JSON(http.StatusOK, settingsResponse{
		ID:               st.ID,
		AppointmentTypes: types,
		BlockReasons:     scheduling.BlockReasons,
		UpdatedAt:        st.UpdatedAt,
		BusinessHours:    businessHours(locs),
		DynamicLocations: locs,
	})
}

func (h *Handler) Get(c echo.Context) error {
	return h.respond(c, h.store.Current())
}

// updateRequest carries the raw catalog so malformed entries can be
// normalized instead of rejected. business_hours is accepted and ignored;
// location hours are edited through the location endpoints.
type updateRequest struct {
	AppointmentTypes json.RawMessage `json:"appointment_types"`
	BusinessHours    json.RawMessage `json:"business_hours"`
}

func (h *Handler) Update(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := h.store.Update(c.Request().Context(), DecodeTypes(req.AppointmentTypes))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "an unexpected error occurred").SetInternal(err)
	}
	return h.respond(c, st)
}
