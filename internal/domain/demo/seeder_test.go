package demo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicsched/clinic/internal/domain/identity"
	"github.com/clinicsched/clinic/internal/domain/location"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/domain/settings"
	"github.com/clinicsched/clinic/internal/platform/lock"
)

// recorder collects the calls of every fake in order.
type recorder struct {
	calls  []string
	nextID int64
	failOn string
}

func (r *recorder) call(name string) error {
	r.calls = append(r.calls, name)
	if r.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (r *recorder) id() int64 {
	r.nextID++
	return r.nextID
}

type fakeAppointments struct {
	*recorder
	stored []*scheduling.Appointment
}

func (f *fakeAppointments) LockAll(context.Context) error { return f.call("appointments.lock") }

func (f *fakeAppointments) DeleteAll(context.Context) (int64, error) {
	n := int64(len(f.stored))
	f.stored = nil
	return n, f.call("appointments.delete")
}

func (f *fakeAppointments) CreateMany(_ context.Context, items []*scheduling.Appointment) (int64, error) {
	if err := f.call("appointments.create"); err != nil {
		return 0, err
	}
	f.stored = append(f.stored, items...)
	return int64(len(items)), nil
}

type fakeLocations struct{ *recorder }

func (f fakeLocations) DeleteAll(context.Context) error { return f.call("locations.delete") }

func (f fakeLocations) Create(_ context.Context, l *location.Location) error {
	l.ID = f.id()
	return f.call("locations.create")
}

type fakeBusiness struct {
	*recorder
	got *location.BusinessSettings
}

func (f *fakeBusiness) Reset(_ context.Context, s *location.BusinessSettings) error {
	f.got = s
	return f.call("business.reset")
}

type fakeSchedule struct {
	*recorder
	saved []scheduling.AppointmentType
}

func (f *fakeSchedule) DeleteAll(context.Context) error { return f.call("settings.delete") }

func (f *fakeSchedule) Save(_ context.Context, types []scheduling.AppointmentType) (*settings.Settings, error) {
	f.saved = types
	return &settings.Settings{ID: 1, AppointmentTypes: types}, f.call("settings.save")
}

type fakePeople struct {
	*recorder
	accounts []identity.AccountSpec
}

func (f *fakePeople) DeleteAll(context.Context) error { return f.call("people.delete") }

func (f *fakePeople) CreateAccount(_ context.Context, spec identity.AccountSpec) (*identity.Provider, error) {
	f.accounts = append(f.accounts, spec)
	return &identity.Provider{ID: 100 + int64(len(f.accounts))}, f.call("people.account")
}

func (f *fakePeople) CreatePatients(_ context.Context, ps []*identity.Patient) error {
	for _, p := range ps {
		p.ID = f.id()
	}
	return f.call("people.patients")
}

type fakeReloader struct{ *recorder }

func (f fakeReloader) Reload(context.Context) error { return f.call("settings.reload") }

type fakeTx struct {
	*recorder
}

func (f fakeTx) WithTx(ctx context.Context, fn func(context.Context) error) error {
	_ = f.call("tx.begin")
	if err := fn(ctx); err != nil {
		f.calls = append(f.calls, "tx.rollback")
		return err
	}
	f.calls = append(f.calls, "tx.commit")
	return nil
}

type fakeLocker struct {
	*recorder
	err error
}

func (f fakeLocker) Acquire(_ context.Context, name string) (lock.Release, error) {
	_ = f.call("lock." + name)
	if f.err != nil {
		return nil, f.err
	}
	return func(context.Context) error {
		f.calls = append(f.calls, "unlock")
		return nil
	}, nil
}

type fixture struct {
	rec          *recorder
	appointments *fakeAppointments
	business     *fakeBusiness
	schedule     *fakeSchedule
	people       *fakePeople
	deps         SeederDeps
}

func newFixture() *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:          rec,
		appointments: &fakeAppointments{recorder: rec},
		business:     &fakeBusiness{recorder: rec},
		schedule:     &fakeSchedule{recorder: rec},
		people:       &fakePeople{recorder: rec},
	}
	f.deps = SeederDeps{
		Tx:           fakeTx{rec},
		Locker:       fakeLocker{recorder: rec},
		Appointments: f.appointments,
		Locations:    fakeLocations{rec},
		Business:     f.business,
		Schedule:     f.schedule,
		People:       f.people,
		Reloader:     fakeReloader{rec},
		Logger:       zerolog.Nop(),
	}
	return f
}

// collapse folds runs of the same call into one entry.
func collapse(calls []string) []string {
	var out []string
	for _, c := range calls {
		if len(out) > 0 && out[len(out)-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}

func TestSeeder_ResetAndSeed(t *testing.T) {
	f := newFixture()
	sum, err := NewSeeder(f.deps).ResetAndSeed(context.Background(), june10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tx.begin",
		"lock.demo-reset",
		"appointments.lock",
		"appointments.delete",
		"people.delete",
		"locations.delete",
		"settings.delete",
		"business.reset",
		"locations.create",
		"settings.save",
		"people.account",
		"people.patients",
		"appointments.create",
		"unlock",
		"tx.commit",
		"settings.reload",
	}, collapse(f.rec.calls))

	assert.True(t, sum.OK)
	assert.Equal(t, june10, sum.SeededForDate)
	assert.Equal(t, 2, sum.Locations)
	assert.Equal(t, 6, sum.Providers)
	assert.Equal(t, 24, sum.Patients)
	assert.Equal(t, 1285, sum.Appointments)
	assert.Equal(t, 374, sum.Blocks)

	assert.True(t, f.business.got.ShowNameInNav)
	assert.Len(t, f.schedule.saved, 7)
	assert.Len(t, f.people.accounts, 6)
	require.Len(t, f.appointments.stored, sum.Appointments+sum.Blocks)

	for _, a := range f.appointments.stored {
		require.Contains(t, []int64{1, 2}, a.LocationID)
		require.GreaterOrEqual(t, a.ProviderID, int64(101))
		require.LessOrEqual(t, a.ProviderID, int64(106))
		assert.Equal(t, a.IsBlock, a.PatientID == nil)
		assert.Equal(t, 1, a.RepeatIntervalWeeks)
		assert.NotNil(t, a.RepeatDays)
		assert.Equal(t, scheduling.Minutes(*a.EndTime)-scheduling.Minutes(*a.StartTime), a.Duration)
	}
}

func TestSeeder_FailureRollsBack(t *testing.T) {
	f := newFixture()
	f.rec.failOn = "people.patients"

	_, err := NewSeeder(f.deps).ResetAndSeed(context.Background(), june10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create patients")

	calls := collapse(f.rec.calls)
	assert.Equal(t, "tx.rollback", calls[len(calls)-1])
	assert.NotContains(t, calls, "appointments.create")
	assert.NotContains(t, calls, "settings.reload")
	assert.Contains(t, calls, "unlock")
}

func TestSeeder_Locked(t *testing.T) {
	f := newFixture()
	f.deps.Locker = fakeLocker{recorder: f.rec, err: lock.ErrLocked}

	_, err := NewSeeder(f.deps).ResetAndSeed(context.Background(), june10)
	assert.ErrorIs(t, err, lock.ErrLocked)
	assert.NotContains(t, f.rec.calls, "appointments.delete")
}

func TestSeeder_RedisLockExcludesConcurrentReset(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := lock.NewRedisLocker(client, time.Minute)

	ctx := context.Background()
	release, err := locker.Acquire(ctx, lockName)
	require.NoError(t, err)

	f := newFixture()
	f.deps.Locker = locker
	seeder := NewSeeder(f.deps)

	_, err = seeder.ResetAndSeed(ctx, june10)
	require.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, release(ctx))
	sum, err := seeder.ResetAndSeed(ctx, june10)
	require.NoError(t, err)
	assert.Equal(t, 1285, sum.Appointments)
}

type stubResetter struct {
	sum *SeedSummary
	err error
	got civil.Date
}

func (s *stubResetter) ResetAndSeed(_ context.Context, today civil.Date) (*SeedSummary, error) {
	s.got = today
	return s.sum, s.err
}

func TestHandler_Reset(t *testing.T) {
	e := echo.New()
	today := func() civil.Date { return june10 }
	post := func(h *Handler) (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/demo/reset", nil), rec)
		return rec, h.Reset(c)
	}

	t.Run("disabled", func(t *testing.T) {
		_, err := post(NewHandler(&stubResetter{}, today, false))
		var he *echo.HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, http.StatusNotFound, he.Code)
	})

	t.Run("ok", func(t *testing.T) {
		stub := &stubResetter{sum: &SeedSummary{OK: true, SeededForDate: june10, Appointments: 3}}
		rec, err := post(NewHandler(stub, today, true))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, june10, stub.got)
		body := rec.Body.String()
		assert.True(t, strings.Contains(body, `"seeded_for_date":"2024-06-10"`), body)
		assert.True(t, strings.Contains(body, `"appointments":3`), body)
	})

	t.Run("locked", func(t *testing.T) {
		_, err := post(NewHandler(&stubResetter{err: lock.ErrLocked}, today, true))
		var he *echo.HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, http.StatusConflict, he.Code)
	})

	t.Run("failure", func(t *testing.T) {
		_, err := post(NewHandler(&stubResetter{err: errors.New("boom")}, today, true))
		var he *echo.HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, http.StatusInternalServerError, he.Code)
	})
}
