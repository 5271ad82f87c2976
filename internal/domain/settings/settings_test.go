package settings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicsched/clinic/internal/domain/location"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
)

type memRepo struct {
	row     *Settings
	creates int
	failGet error
}

func (m *memRepo) Get(context.Context) (*Settings, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	if m.row == nil {
		return nil, ErrNotFound
	}
	c := *m.row
	return &c, nil
}

func (m *memRepo) Create(ctx context.Context, types []scheduling.AppointmentType) (*Settings, error) {
	if m.row == nil {
		m.creates++
		m.row = &Settings{ID: 1, AppointmentTypes: types, UpdatedAt: time.Now()}
	}
	return m.Get(ctx)
}

func (m *memRepo) Save(ctx context.Context, types []scheduling.AppointmentType) (*Settings, error) {
	m.row = &Settings{ID: 1, AppointmentTypes: types, UpdatedAt: time.Now()}
	return m.Get(ctx)
}

func (m *memRepo) DeleteAll(context.Context) error {
	m.row = nil
	return nil
}

func TestNormalize(t *testing.T) {
	got := Normalize([]TypeInput{
		{Name: "  ", DefaultDuration: 45, ColorCode: "red"},
		{Name: "Consult", DefaultDuration: "15", ColorCode: "#2e7d32"},
		{Name: "Lunch", DefaultDuration: 30, ColorCode: "#FFFFFF"},
		{Name: "Consult", DefaultDuration: 60, ColorCode: "#000001"},
		{Name: "Scan", DefaultDuration: nil, ColorCode: nil},
	})
	require.Len(t, got, 3)
	assert.Equal(t, scheduling.AppointmentType{Name: "Untitled", DefaultDuration: 30, ColorCode: "#000000", Kind: scheduling.KindBookable}, got[0])
	assert.Equal(t, "Consult", got[1].Name)
	assert.Equal(t, 15, got[1].DefaultDuration)
	assert.Equal(t, "#2e7d32", got[1].ColorCode)
	assert.Equal(t, "Scan", got[2].Name)
	assert.Equal(t, 30, got[2].DefaultDuration)
}

func TestDecodeTypes(t *testing.T) {
	assert.Empty(t, DecodeTypes(json.RawMessage(`{"name":"x"}`)))
	assert.Empty(t, DecodeTypes(nil))

	got := DecodeTypes(json.RawMessage(`[{"name":"X-Ray","default_duration":15,"color_code":"#5F6F52"}, "junk", {"name":"Big","default_duration":90}]`))
	require.Len(t, got, 3)
	assert.Equal(t, 15, got[0].DefaultDuration)
	assert.Equal(t, "Untitled", got[1].Name)
	assert.Equal(t, 30, got[2].DefaultDuration)
}

func TestParseTypesYAML(t *testing.T) {
	data := []byte(`
appointment_types:
  - name: Consult
    default_duration: 30
    color_code: "#2E7D32"
  - name: Quick
    default_duration: "15"
`)
	got, err := ParseTypesYAML(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "#2E7D32", got[0].ColorCode)
	assert.Equal(t, 15, got[1].DefaultDuration)
	assert.Equal(t, "#000000", got[1].ColorCode)

	_, err = ParseTypesYAML([]byte("appointment_types: []"))
	assert.Error(t, err)
	_, err = ParseTypesYAML([]byte("appointment_types: ["))
	assert.Error(t, err)
}

func TestDefaultTypes(t *testing.T) {
	types := DefaultTypes()
	require.Len(t, types, 7)
	for _, ty := range types {
		assert.Contains(t, []int{15, 30, 60}, ty.DefaultDuration, ty.Name)
		assert.Equal(t, scheduling.KindBookable, ty.Kind)
	}
}

func TestStore_InitCreatesFromSeed(t *testing.T) {
	repo := &memRepo{}
	s := NewStore(repo, DefaultTypes(), zerolog.Nop())

	_, ok := s.FindType("Consult")
	assert.False(t, ok, "catalog is empty before Init")
	assert.Equal(t, scheduling.KindBlockReason, s.Classify("lunch"))

	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, 1, repo.creates)
	consult, ok := s.FindType("Consult")
	require.True(t, ok)
	assert.Equal(t, 30, consult.DefaultDuration)

	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, 1, repo.creates, "existing row is reused")
}

func TestStore_InitError(t *testing.T) {
	s := NewStore(&memRepo{failGet: errors.New("boom")}, nil, zerolog.Nop())
	assert.Error(t, s.Init(context.Background()))
}

func TestStore_UpdateKeepsBlockReasons(t *testing.T) {
	repo := &memRepo{}
	s := NewStore(repo, DefaultTypes(), zerolog.Nop())
	require.NoError(t, s.Init(context.Background()))

	st, err := s.Update(context.Background(), []scheduling.AppointmentType{
		{Name: "Telehealth", DefaultDuration: 15, ColorCode: "#123456"},
		{Name: "Out of Office", DefaultDuration: 15, ColorCode: "#123456"},
	})
	require.NoError(t, err)
	require.Len(t, st.AppointmentTypes, 1)
	assert.Equal(t, scheduling.KindBookable, st.AppointmentTypes[0].Kind)

	_, ok := s.FindType("Consult")
	assert.False(t, ok)
	ooo, ok := s.FindType("Out of Office")
	require.True(t, ok)
	assert.Equal(t, scheduling.KindBlockReason, ooo.Kind)
	assert.Equal(t, scheduling.BlockColor, ooo.ColorCode)
}

func TestStore_ReloadSeesOutOfBandWrites(t *testing.T) {
	repo := &memRepo{}
	s := NewStore(repo, DefaultTypes(), zerolog.Nop())
	require.NoError(t, s.Init(context.Background()))

	repo.row = &Settings{ID: 1, AppointmentTypes: []scheduling.AppointmentType{{Name: "Only", DefaultDuration: 60, ColorCode: "#000000", Kind: scheduling.KindBookable}}}
	_, ok := s.FindType("Only")
	assert.False(t, ok)
	require.NoError(t, s.Reload(context.Background()))
	_, ok = s.FindType("Only")
	assert.True(t, ok)
}

type fakeLocations []*location.Location

func (f fakeLocations) ListLocations(context.Context, bool) ([]*location.Location, error) {
	return f, nil
}

func TestHandler_Get(t *testing.T) {
	s := NewStore(&memRepo{}, DefaultTypes(), zerolog.Nop())
	require.NoError(t, s.Init(context.Background()))
	north := &location.Location{ID: 1, Name: "North", Slug: "north", IsActive: true, Hours: []location.Hours{
		{Weekday: "sat", Open: false, Start: civil.Time{Hour: 9}, End: civil.Time{Hour: 12, Minute: 30}},
	}}
	h := NewHandler(s, fakeLocations{north})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, h.Get(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AppointmentTypes []scheduling.AppointmentType   `json:"appointment_types"`
		BlockReasons     []scheduling.AppointmentType   `json:"block_reasons"`
		BusinessHours    map[string]map[string]dayHours `json:"business_hours"`
		DynamicLocations []map[string]any               `json:"dynamic_locations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.AppointmentTypes, 7)
	assert.Len(t, body.BlockReasons, len(scheduling.BlockReasons))
	require.Contains(t, body.BusinessHours, "north")
	assert.Len(t, body.BusinessHours["north"], 7)
	assert.Equal(t, dayHours{Open: false, Start: "09:00", End: "12:30"}, body.BusinessHours["north"]["sat"])
	assert.Equal(t, dayHours{Open: true, Start: "08:00", End: "17:00"}, body.BusinessHours["north"]["mon"])
	require.Len(t, body.DynamicLocations, 1)
	assert.Equal(t, "north", body.DynamicLocations[0]["slug"])
}

func TestHandler_Update(t *testing.T) {
	s := NewStore(&memRepo{}, DefaultTypes(), zerolog.Nop())
	require.NoError(t, s.Init(context.Background()))
	h := NewHandler(s, fakeLocations{})

	e := echo.New()
	body := `{"appointment_types":[{"name":"Telehealth","default_duration":"60","color_code":"bad"}],"business_hours":{"north":{}}}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Update(e.NewContext(req, rec)))

	var out settingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.AppointmentTypes, 1)
	assert.Equal(t, scheduling.AppointmentType{Name: "Telehealth", DefaultDuration: 60, ColorCode: "#000000", Kind: scheduling.KindBookable}, out.AppointmentTypes[0])
	assert.Empty(t, out.BusinessHours)

	tele, ok := s.FindType("Telehealth")
	require.True(t, ok)
	assert.Equal(t, 60, tele.DefaultDuration)
}
