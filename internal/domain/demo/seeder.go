package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/domain/identity"
	"github.com/clinicsched/clinic/internal/domain/location"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/domain/settings"
	"github.com/clinicsched/clinic/internal/platform/db"
	"github.com/clinicsched/clinic/internal/platform/lock"
	"github.com/clinicsched/clinic/internal/platform/metrics"
)

const lockName = "demo-reset"

// SeedSummary is returned by a reset.
type SeedSummary struct {
	OK            bool       `json:"ok"`
	SeededForDate civil.Date `json:"seeded_for_date"`
	WindowStart   civil.Date `json:"window_start"`
	WindowEnd     civil.Date `json:"window_end"`
	Locations     int        `json:"locations"`
	Providers     int        `json:"providers"`
	Patients      int        `json:"patients"`
	Appointments  int        `json:"appointments"`
	Blocks        int        `json:"blocks"`
}

type AppointmentStore interface {
	LockAll(ctx context.Context) error
	DeleteAll(ctx context.Context) (int64, error)
	CreateMany(ctx context.Context, items []*scheduling.Appointment) (int64, error)
}

type LocationStore interface {
	DeleteAll(ctx context.Context) error
	Create(ctx context.Context, loc *location.Location) error
}

type BusinessSettingsStore interface {
	Reset(ctx context.Context, s *location.BusinessSettings) error
}

type ScheduleSettingsStore interface {
	DeleteAll(ctx context.Context) error
	Save(ctx context.Context, types []scheduling.AppointmentType) (*settings.Settings, error)
}

// People creates and removes patients and provider accounts.
type People interface {
	DeleteAll(ctx context.Context) error
	CreateAccount(ctx context.Context, spec identity.AccountSpec) (*identity.Provider, error)
	CreatePatients(ctx context.Context, patients []*identity.Patient) error
}

// Reloader refreshes caches after the reset commits.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Seeder struct {
	tx           db.TxRunner
	locker       lock.Locker
	appointments AppointmentStore
	locations    LocationStore
	business     BusinessSettingsStore
	schedule     ScheduleSettingsStore
	people       People
	reloader     Reloader
	logger       zerolog.Logger
}

type SeederDeps struct {
	Tx           db.TxRunner
	Locker       lock.Locker
	Appointments AppointmentStore
	Locations    LocationStore
	Business     BusinessSettingsStore
	Schedule     ScheduleSettingsStore
	People       People
	Reloader     Reloader
	Logger       zerolog.Logger
}

func NewSeeder(d SeederDeps) *Seeder {
	return &Seeder{
		tx:           d.Tx,
		locker:       d.Locker,
		appointments: d.Appointments,
		locations:    d.Locations,
		business:     d.Business,
		schedule:     d.Schedule,
		people:       d.People,
		reloader:     d.Reloader,
		logger:       d.Logger,
	}
}

// ResetAndSeed replaces all scheduling data with BuildPlan(today) in a
// single transaction. Appointment writes from other sessions wait until it
// commits. A concurrent reset fails with lock.ErrLocked.
func (s *Seeder) ResetAndSeed(ctx context.Context, today civil.Date) (*SeedSummary, error) {
	started := time.Now()
	plan := BuildPlan(today)

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		release, err := s.locker.Acquire(ctx, lockName)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Msg("release demo reset lock")
			}
		}()

		if err := s.appointments.LockAll(ctx); err != nil {
			return fmt.Errorf("lock appointments: %w", err)
		}
		if err := s.wipe(ctx); err != nil {
			return err
		}
		return s.seed(ctx, plan)
	})
	switch {
	case errors.Is(err, lock.ErrLocked):
		metrics.IncDemoReset("locked")
		return nil, err
	case err != nil:
		metrics.IncDemoReset("error")
		s.logger.Error().Err(err).Str("today", today.String()).Msg("demo reset failed")
		return nil, err
	}

	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.Error().Err(err).Msg("reload schedule settings after demo reset")
	}
	metrics.IncDemoReset("ok")

	sum := &SeedSummary{
		OK:            true,
		SeededForDate: plan.Today,
		WindowStart:   plan.WindowStart,
		WindowEnd:     plan.WindowEnd,
		Locations:     len(plan.Locations),
		Providers:     len(plan.Providers),
		Patients:      len(plan.Patients),
		Appointments:  plan.Appointments(),
		Blocks:        plan.Blocks(),
	}
	s.logger.Info().
		Str("today", today.String()).
		Int("appointments", sum.Appointments).
		Int("blocks", sum.Blocks).
		Dur("elapsed", time.Since(started)).
		Msg("demo data reset")
	return sum, nil
}

// wipe deletes in dependency order: appointments reference patients,
// providers and locations.
func (s *Seeder) wipe(ctx context.Context) error {
	if _, err := s.appointments.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete appointments: %w", err)
	}
	if err := s.people.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.locations.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete locations: %w", err)
	}
	if err := s.schedule.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete schedule settings: %w", err)
	}
	return nil
}

func (s *Seeder) seed(ctx context.Context, plan *Plan) error {
	if err := s.business.Reset(ctx, &location.BusinessSettings{ShowNameInNav: true}); err != nil {
		return fmt.Errorf("reset business settings: %w", err)
	}

	locIDs := make(map[string]int64, len(plan.Locations))
	for _, l := range plan.Locations {
		if err := s.locations.Create(ctx, l); err != nil {
			return fmt.Errorf("create location %s: %w", l.Slug, err)
		}
		locIDs[l.Slug] = l.ID
	}

	if _, err := s.schedule.Save(ctx, plan.Types); err != nil {
		return fmt.Errorf("save schedule settings: %w", err)
	}

	providerIDs := make([]int64, len(plan.Providers))
	for i, spec := range plan.Providers {
		p, err := s.people.CreateAccount(ctx, spec)
		if err != nil {
			return err
		}
		providerIDs[i] = p.ID
	}

	if err := s.people.CreatePatients(ctx, plan.Patients); err != nil {
		return fmt.Errorf("create patients: %w", err)
	}

	items := make([]*scheduling.Appointment, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		items = append(items, s.appointment(plan, e, providerIDs, locIDs))
	}
	n, err := s.appointments.CreateMany(ctx, items)
	if err != nil {
		return fmt.Errorf("create appointments: %w", err)
	}
	if int(n) != len(items) {
		return fmt.Errorf("create appointments: wrote %d of %d rows", n, len(items))
	}
	return nil
}

func (s *Seeder) appointment(plan *Plan, e Entry, providerIDs []int64, locIDs map[string]int64) *scheduling.Appointment {
	start, end := e.Start, e.End
	a := &scheduling.Appointment{
		ProviderID:          providerIDs[e.ProviderIndex],
		LocationID:          locIDs[e.Office],
		Office:              e.Office,
		AppointmentType:     e.Type,
		IsBlock:             e.IsBlock(),
		Status:              e.Status,
		IntakeStatus:        e.IntakeStatus,
		ColorCode:           e.ColorCode,
		Date:                e.Date,
		StartTime:           &start,
		EndTime:             &end,
		Duration:            scheduling.Minutes(end) - scheduling.Minutes(start),
		RepeatDays:          []string{},
		RepeatIntervalWeeks: 1,
	}
	if !e.IsBlock() {
		id := plan.Patients[e.PatientIndex].ID
		a.PatientID = &id
	}
	return a
}
