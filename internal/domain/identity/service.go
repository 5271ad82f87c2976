package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/db"
)

type Service struct {
	patients  PatientRepository
	providers ProviderRepository
	users     UserRepository
	tx        db.TxRunner
	logger    zerolog.Logger
}

func NewService(patients PatientRepository, providers ProviderRepository, users UserRepository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{patients: patients, providers: providers, users: users, tx: tx, logger: logger}
}

var (
	_ auth.AccountStore   = (*Service)(nil)
	_ auth.ProviderLookup = (*Service)(nil)
)

// -- Patients and providers --

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, search, limit, offset)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, search string, limit, offset int) ([]*Provider, int, error) {
	return s.providers.List(ctx, search, limit, offset)
}

func (s *Service) GetProvider(ctx context.Context, id int64) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

// -- Accounts --

func (s *Service) account(ctx context.Context, u *User) (*auth.Account, error) {
	acct := &auth.Account{
		UserID:       u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		IsStaff:      u.IsStaff,
		IsSuperuser:  u.IsSuperuser,
		IsActive:     u.IsActive,
	}
	p, err := s.providers.GetByUserID(ctx, u.ID)
	switch {
	case err == nil:
		acct.ProviderID = &p.ID
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return acct, nil
}

func (s *Service) FindAccount(ctx context.Context, username string) (*auth.Account, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.account(ctx, u)
}

func (s *Service) GetAccount(ctx context.Context, userID int64) (*auth.Account, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.account(ctx, u)
}

func (s *Service) SetPasswordHash(ctx context.Context, userID int64, hash string) error {
	err := s.users.SetPasswordHash(ctx, userID, hash)
	if errors.Is(err, ErrNotFound) {
		return auth.ErrAccountNotFound
	}
	return err
}

func (s *Service) ProviderSummary(ctx context.Context, id int64) (*auth.ProviderSummary, error) {
	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := &auth.ProviderSummary{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Email: p.Email}
	if p.Specialty != nil {
		sum.Specialty = *p.Specialty
	}
	return sum, nil
}

// -- Bootstrap --

// EnsureAccounts makes every spec present as a user with a linked provider.
// Existing users are realigned to the spec, but their password is only set
// when they have none.
func (s *Service) EnsureAccounts(ctx context.Context, specs []AccountSpec) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, spec := range specs {
			if err := s.ensureAccount(ctx, spec); err != nil {
				return fmt.Errorf("ensure account %s: %w", spec.Username, err)
			}
		}
		return nil
	})
}

func (s *Service) ensureAccount(ctx context.Context, spec AccountSpec) error {
	u, err := s.users.GetByUsername(ctx, spec.Username)
	created := false
	switch {
	case errors.Is(err, ErrNotFound):
		u = &User{Username: spec.Username, IsActive: true}
		created = true
	case err != nil:
		return err
	}

	u.Email, u.FirstName, u.LastName = spec.Email, spec.FirstName, spec.LastName
	u.IsStaff, u.IsSuperuser = spec.IsStaff, spec.IsSuperuser
	if u.PasswordHash == "" {
		hash, err := auth.HashPassword(spec.Password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	if created {
		err = s.users.Create(ctx, u)
	} else {
		err = s.users.Update(ctx, u)
	}
	if err != nil {
		return err
	}

	if _, err := s.providers.GetByUserID(ctx, u.ID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	userID := u.ID
	p := &Provider{
		UserID:    &userID,
		FirstName: spec.FirstName,
		LastName:  spec.LastName,
		Specialty: strPtr(spec.Specialty),
		Email:     spec.Email,
		Phone:     strPtr(spec.Phone),
	}
	if err := s.providers.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("username", spec.Username).Int64("provider_id", p.ID).Bool("user_created", created).Msg("bootstrap account ensured")
	return nil
}

// CreateAccount inserts a new user and its linked provider. The password is
// hashed with bcrypt.
func (s *Service) CreateAccount(ctx context.Context, spec AccountSpec) (*Provider, error) {
	hash, err := auth.HashPassword(spec.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:     spec.Username,
		Email:        spec.Email,
		FirstName:    spec.FirstName,
		LastName:     spec.LastName,
		PasswordHash: hash,
		IsStaff:      spec.IsStaff,
		IsSuperuser:  spec.IsSuperuser,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %s: %w", spec.Username, err)
	}
	userID := u.ID
	p := &Provider{
		UserID:    &userID,
		FirstName: spec.FirstName,
		LastName:  spec.LastName,
		Specialty: strPtr(spec.Specialty),
		Email:     spec.Email,
		Phone:     strPtr(spec.Phone),
	}
	if err := s.providers.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create provider %s: %w", spec.Username, err)
	}
	return p, nil
}

// CreatePatients inserts patients in bulk.
func (s *Service) CreatePatients(ctx context.Context, patients []*Patient) error {
	return s.patients.CreateMany(ctx, patients)
}

// DeleteAll removes every patient and provider, and the users linked to
// providers. Unlinked users are kept.
func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.patients.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete patients: %w", err)
	}
	if err := s.providers.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete providers: %w", err)
	}
	return nil
}
