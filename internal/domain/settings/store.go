package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/domain/scheduling"
)

type snapshot struct {
	settings Settings
	catalog  *scheduling.Catalog
}

func newSnapshot(s Settings) *snapshot {
	s.AppointmentTypes = append([]scheduling.AppointmentType(nil), s.AppointmentTypes...)
	return &snapshot{settings: s, catalog: scheduling.NewCatalog(s.AppointmentTypes)}
}

// Store caches the schedule settings row. Reads never touch the database;
// Init, Reload and Update swap the cached value.
type Store struct {
	repo   Repository
	seed   []scheduling.AppointmentType
	logger zerolog.Logger

	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[snapshot]
}

var _ scheduling.SettingsProvider = (*Store)(nil)

// NewStore returns a store seeded with an empty catalog. seed is written when
// Init finds no settings row.
func NewStore(repo Repository, seed []scheduling.AppointmentType, logger zerolog.Logger) *Store {
	s := &Store{repo: repo, seed: seed, logger: logger}
	s.cur.Store(newSnapshot(Settings{}))
	return s
}

// Init loads the settings row, creating it from the seed catalog when it
// does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.repo.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		st, err = s.repo.Create(ctx, s.seed)
		if err == nil {
			s.logger.Info().Int("types", len(st.AppointmentTypes)).Msg("schedule settings created")
		}
	}
	if err != nil {
		return fmt.Errorf("load schedule settings: %w", err)
	}
	s.cur.Store(newSnapshot(*st))
	return nil
}

// Reload re-reads the settings row after an out-of-band write.
func (s *Store) Reload(ctx context.Context) error {
	return s.Init(ctx)
}

// Current returns a copy of the cached settings.
func (s *Store) Current() Settings {
	st := s.cur.Load().settings
	st.AppointmentTypes = append([]scheduling.AppointmentType(nil), st.AppointmentTypes...)
	return st
}

func (s *Store) Catalog() *scheduling.Catalog {
	return s.cur.Load().catalog
}

func (s *Store) FindType(name string) (scheduling.AppointmentType, bool) {
	return s.Catalog().FindType(name)
}

func (s *Store) Classify(name string) scheduling.Kind {
	return s.Catalog().Classify(name)
}

// Update replaces the bookable appointment types. Block reasons are not
// affected.
func (s *Store) Update(ctx context.Context, types []scheduling.AppointmentType) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.repo.Save(ctx, bookable(types))
	if err != nil {
		return Settings{}, err
	}
	s.cur.Store(newSnapshot(*st))
	s.logger.Info().Int("types", len(st.AppointmentTypes)).Msg("schedule settings updated")
	return s.Current(), nil
}
