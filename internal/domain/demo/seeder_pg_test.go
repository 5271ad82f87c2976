package demo

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicsched/clinic/internal/domain/identity"
	"github.com/clinicsched/clinic/internal/domain/location"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/domain/settings"
	"github.com/clinicsched/clinic/internal/platform/db"
	"github.com/clinicsched/clinic/internal/platform/db/dbtest"
	"github.com/clinicsched/clinic/internal/platform/lock"
)

type pgStack struct {
	pool     *pgxpool.Pool
	tx       *db.Transactor
	store    *settings.Store
	seeder   *Seeder
	identity *identity.Service
	engine   *scheduling.Engine
	svc      *scheduling.Service
}

func newPGStack(t *testing.T) *pgStack {
	pool := dbtest.Pool(t)
	logger := zerolog.Nop()
	tx := db.NewTransactor(pool, pgx.ReadCommitted)

	appointments := scheduling.NewAppointmentRepoPG(pool)
	locations := location.NewLocationRepoPG(pool)
	business := location.NewBusinessSettingsRepoPG(pool)
	settingsRepo := settings.NewRepoPG(pool)

	locSvc := location.NewService(locations, business, appointments, tx, logger)
	store := settings.NewStore(settingsRepo, settings.DefaultTypes(), logger)
	require.NoError(t, store.Init(context.Background()))

	people := identity.NewService(identity.NewPatientRepoPG(pool), identity.NewProviderRepoPG(pool), identity.NewUserRepoPG(pool), tx, logger)
	engine := scheduling.NewEngine(locSvc, store, appointments, time.UTC, logger)

	return &pgStack{
		pool:     pool,
		tx:       tx,
		store:    store,
		identity: people,
		engine:   engine,
		svc:      scheduling.NewService(engine, appointments, tx, logger),
		seeder: NewSeeder(SeederDeps{
			Tx:           tx,
			Locker:       lock.PGLocker{},
			Appointments: appointments,
			Locations:    locations,
			Business:     business,
			Schedule:     settingsRepo,
			People:       people,
			Reloader:     store,
			Logger:       logger,
		}),
	}
}

func count(t *testing.T, pool *pgxpool.Pool, query string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), query).Scan(&n))
	return n
}

func TestSeeder_Postgres(t *testing.T) {
	s := newPGStack(t)
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		sum, err := s.seeder.ResetAndSeed(ctx, june10)
		require.NoError(t, err, "run %d", run)
		assert.Equal(t, 1285, sum.Appointments)
	}

	assert.Equal(t, 1285, count(t, s.pool, `SELECT count(*) FROM appointments WHERE NOT is_block`))
	assert.Equal(t, 374, count(t, s.pool, `SELECT count(*) FROM appointments WHERE is_block`))
	assert.Equal(t, 2, count(t, s.pool, `SELECT count(*) FROM locations`))
	assert.Equal(t, 14, count(t, s.pool, `SELECT count(*) FROM location_hours`))
	assert.Equal(t, 6, count(t, s.pool, `SELECT count(*) FROM providers`))
	assert.Equal(t, 24, count(t, s.pool, `SELECT count(*) FROM patients`))
	assert.Equal(t, 1, count(t, s.pool, `SELECT count(*) FROM schedule_settings`))

	acct, err := s.identity.FindAccount(ctx, "cadminton")
	require.NoError(t, err)
	assert.True(t, acct.IsSuperuser)

	_, ok := s.store.FindType("Phlebotomy")
	assert.True(t, ok, "settings snapshot reloaded after reset")
}

func TestSeeder_PostgresSeededDataIsAdmissible(t *testing.T) {
	s := newPGStack(t)
	ctx := context.Background()
	_, err := s.seeder.ResetAndSeed(ctx, june10)
	require.NoError(t, err)

	// Re-admitting a seeded appointment unchanged must pass every rule,
	// including the overlap check against its neighbours.
	var id int64
	require.NoError(t, s.pool.QueryRow(ctx,
		`SELECT id FROM appointments WHERE NOT is_block AND date = $1 ORDER BY id LIMIT 1`, db.Date(june10)).Scan(&id))
	_, err = s.svc.Update(ctx, id, scheduling.Proposal{}, false)
	require.NoError(t, err)
}

func TestSeeder_PostgresLockedWhileAnotherResetRuns(t *testing.T) {
	s := newPGStack(t)
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.tx.WithTx(ctx, func(ctx context.Context) error {
			release, err := lock.PGLocker{}.Acquire(ctx, lockName)
			if err != nil {
				close(held)
				return err
			}
			defer release(ctx)
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	_, err := s.seeder.ResetAndSeed(ctx, june10)
	close(done)
	assert.ErrorIs(t, err, lock.ErrLocked)
}
