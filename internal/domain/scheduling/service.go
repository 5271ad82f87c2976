package scheduling

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/db"
	"github.com/clinicsched/clinic/internal/platform/metrics"
)

// Service runs admission and persistence for appointment writes inside one
// transaction per request.
type Service struct {
	engine *Engine
	repo   AppointmentRepository
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(engine *Engine, repo AppointmentRepository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{engine: engine, repo: repo, tx: tx, logger: logger}
}

// Create admits and stores a new appointment. A proposal without a provider
// is assigned the caller's linked provider.
func (s *Service) Create(ctx context.Context, p Proposal, allowOverlap bool) (*Appointment, error) {
	if !p.Provider.present() || p.Provider.Value == 0 {
		if id, ok := auth.ProviderIDFromContext(ctx); ok {
			p.Provider = Of(id)
		}
	}

	var created *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if p.Provider.present() && p.Provider.Value != 0 {
			if err := s.repo.LockProvider(ctx, p.Provider.Value); err != nil {
				return storageErr("lock provider", err)
			}
		}
		a, err := s.engine.ValidateAndNormalize(ctx, p, nil, allowOverlap)
		if err != nil {
			return err
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return s.persistErr("create appointment", err, a)
		}
		created = a
		return nil
	})
	s.record(err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("appointment_id", created.ID).Int64("provider_id", created.ProviderID).
		Str("office", created.Office).Bool("is_block", created.IsBlock).Msg("appointment created")
	return created, nil
}

// Update admits p merged over the stored appointment id.
func (s *Service) Update(ctx context.Context, id int64, p Proposal, allowOverlap bool) (*Appointment, error) {
	var updated *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return storageErr("get appointment", err)
		}
		if err := s.lockProviders(ctx, existing.ProviderID, p); err != nil {
			return err
		}
		a, err := s.engine.ValidateAndNormalize(ctx, p, existing, allowOverlap)
		if err != nil {
			return err
		}
		if err := s.repo.Update(ctx, a); err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return s.persistErr("update appointment", err, a)
		}
		updated = a
		return nil
	})
	if !errors.Is(err, ErrNotFound) {
		s.record(err)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// lockProviders takes the provider locks for an update in ascending id
// order, so two moves between the same providers cannot deadlock.
func (s *Service) lockProviders(ctx context.Context, current int64, p Proposal) error {
	ids := []int64{current}
	if p.Provider.present() && p.Provider.Value != 0 && p.Provider.Value != current {
		if p.Provider.Value < current {
			ids = []int64{p.Provider.Value, current}
		} else {
			ids = append(ids, p.Provider.Value)
		}
	}
	for _, id := range ids {
		if err := s.repo.LockProvider(ctx, id); err != nil {
			return storageErr("lock provider", err)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, storageErr("get appointment", err)
	}
	return a, err
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storageErr("delete appointment", err)
	}
	return err
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list appointments", err)
	}
	return items, total, nil
}

// foreignKeys names the request field behind each appointments foreign key.
var foreignKeys = map[string]Violation{
	"appointments_patient_id_fkey":  {Code: CodePatientUnknown, Fields: []string{"patient"}, Message: "Patient does not exist."},
	"appointments_provider_id_fkey": {Code: CodeProviderUnknown, Fields: []string{"provider"}, Message: "Provider does not exist."},
	"appointments_location_id_fkey": {Code: CodeLocationUnknown, Fields: []string{"location"}, Message: "Location does not exist."},
}

// persistErr maps the exclusion constraint to TIME_OVERLAP and a missing
// patient, provider or location to a rejection on that field. Any other
// failure is a storage error.
func (s *Service) persistErr(op string, err error, a *Appointment) error {
	if db.IsPgCode(err, db.CodeExclusionViolation) {
		return newRejection([]Violation{overlapViolation(&Appointment{}, a.Office)})
	}
	if db.IsPgCode(err, db.CodeForeignKeyViolation) {
		if v, ok := foreignKeys[db.ConstraintName(err)]; ok {
			return newRejection([]Violation{v})
		}
	}
	return storageErr(op, err)
}

func (s *Service) record(err error) {
	if err == nil {
		metrics.IncAdmission(metrics.OutcomeAccepted, "")
		return
	}
	if re, ok := AsRejection(err); ok {
		for _, v := range re.Violations {
			metrics.IncAdmission(metrics.OutcomeRejected, v.Code)
		}
		return
	}
	s.logger.Error().Err(err).Msg("appointment write failed")
	metrics.IncAdmission(metrics.OutcomeError, CodeStorageError)
}
