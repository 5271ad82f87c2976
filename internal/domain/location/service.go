package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/platform/db"
)

// maxSlugAttempts bounds the -2, -3... suffix search.
const maxSlugAttempts = 1000

// Service is the Location Directory. It also resolves locations for the
// admission engine.
type Service struct {
	locs     LocationRepository
	business BusinessSettingsRepository
	usage    UsageCounter
	tx       db.TxRunner
	logger   zerolog.Logger
}

func NewService(locs LocationRepository, business BusinessSettingsRepository, usage UsageCounter, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{locs: locs, business: business, usage: usage, tx: tx, logger: logger}
}

var _ scheduling.LocationDirectory = (*Service)(nil)

// -- Directory --

func (s *Service) Get(ctx context.Context, id int64) (*scheduling.LocationRef, error) {
	l, err := s.locs.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scheduling.LocationRef{ID: l.ID, Slug: l.Slug, Name: l.Name}, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*scheduling.LocationRef, error) {
	l, err := s.locs.GetBySlug(ctx, slug)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scheduling.LocationRef{ID: l.ID, Slug: l.Slug, Name: l.Name}, nil
}

func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	ref, err := s.Get(ctx, id)
	return ref != nil, err
}

// Hours returns the opening hours for weekday. A location without a row
// for the day is open with the default hours.
func (s *Service) Hours(ctx context.Context, id int64, weekday string) (scheduling.DayHours, error) {
	h, err := s.locs.GetHours(ctx, id, weekday)
	if err != nil {
		return scheduling.DayHours{}, err
	}
	if h == nil {
		return scheduling.DayHours{Open: true, Start: DefaultOpen, End: DefaultClose}, nil
	}
	return scheduling.DayHours{Open: h.Open, Start: h.Start, End: h.End}, nil
}

// -- Locations --

func (s *Service) ListLocations(ctx context.Context, activeOnly bool) ([]*Location, error) {
	return s.locs.List(ctx, activeOnly)
}

func (s *Service) GetLocation(ctx context.Context, id int64) (*Location, error) {
	return s.locs.GetByID(ctx, id)
}

// CreateLocation stores loc. An empty slug is derived from the name; a
// derived slug that is taken gets the first free -2, -3... suffix, while a
// taken explicit slug is an error.
func (s *Service) CreateLocation(ctx context.Context, loc *Location) error {
	loc.Name = strings.TrimSpace(loc.Name)
	if loc.Name == "" {
		return invalidf("location name is required")
	}
	if len(loc.Hours) == 0 {
		loc.Hours = DefaultWeek()
	}
	if err := validateHours(loc.Hours); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.assignSlug(ctx, loc); err != nil {
			return err
		}
		if err := s.locs.Create(ctx, loc); err != nil {
			if db.IsPgCode(err, db.CodeUniqueViolation) {
				return ErrSlugTaken
			}
			return err
		}
		s.logger.Info().Int64("location_id", loc.ID).Str("slug", loc.Slug).Msg("location created")
		return nil
	})
}

func (s *Service) assignSlug(ctx context.Context, loc *Location) error {
	if loc.Slug != "" {
		loc.Slug = Slugify(loc.Slug)
		if loc.Slug == "" {
			return invalidf("slug must contain letters or digits")
		}
		taken, err := s.locs.SlugExists(ctx, loc.Slug, loc.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlugTaken
		}
		return nil
	}
	base := Slugify(loc.Name)
	if base == "" {
		base = fallbackSlug
	}
	for n := 1; n <= maxSlugAttempts; n++ {
		candidate := slugCandidate(base, n)
		taken, err := s.locs.SlugExists(ctx, candidate, loc.ID)
		if err != nil {
			return err
		}
		if !taken {
			loc.Slug = candidate
			return nil
		}
	}
	return ErrSlugTaken
}

// LocationPatch holds the fields of a location update. Nil fields are kept.
type LocationPatch struct {
	Name     *string `json:"name"`
	Slug     *string `json:"slug"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Address  *string `json:"address"`
	IsActive *bool   `json:"is_active"`
}

// UpdateLocation applies p. A slug change is carried to the appointments
// that reference the location.
func (s *Service) UpdateLocation(ctx context.Context, id int64, p LocationPatch) (*Location, error) {
	var out *Location
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		loc, err := s.locs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return invalidf("location name is required")
			}
			loc.Name = name
		}
		if p.Phone != nil {
			loc.Phone = p.Phone
		}
		if p.Email != nil {
			loc.Email = p.Email
		}
		if p.Address != nil {
			loc.Address = p.Address
		}
		if p.IsActive != nil {
			loc.IsActive = *p.IsActive
		}
		if p.Slug != nil && Slugify(*p.Slug) != loc.Slug {
			loc.Slug = *p.Slug
			if err := s.assignSlug(ctx, loc); err != nil {
				return err
			}
		}
		if err := s.locs.Update(ctx, loc); err != nil {
			if db.IsPgCode(err, db.CodeUniqueViolation) {
				return ErrSlugTaken
			}
			return err
		}
		out = loc
		return nil
	})
	return out, err
}

// UpdateHours upserts the given weekday rows. Days not listed keep their
// current hours.
func (s *Service) UpdateHours(ctx context.Context, id int64, hours []Hours) (*Location, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}
	var out *Location
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.locs.GetByID(ctx, id); err != nil {
			return err
		}
		if err := s.locs.UpsertHours(ctx, id, hours); err != nil {
			return err
		}
		loc, err := s.locs.GetByID(ctx, id)
		out = loc
		return err
	})
	return out, err
}

func validateHours(hours []Hours) error {
	seen := make(map[string]bool, len(hours))
	for _, h := range hours {
		if !scheduling.IsWeekdayCode(h.Weekday) {
			return fmt.Errorf("%w: %q is not a weekday code", ErrInvalidHours, h.Weekday)
		}
		if seen[h.Weekday] {
			return fmt.Errorf("%w: %s listed twice", ErrInvalidHours, h.Weekday)
		}
		seen[h.Weekday] = true
		if h.Open && scheduling.Minutes(h.Start) >= scheduling.Minutes(h.End) {
			return fmt.Errorf("%w: start time must be earlier than end time when %s is open", ErrInvalidHours, h.Weekday)
		}
	}
	return nil
}

// DeleteLocation removes a location that no appointment references.
func (s *Service) DeleteLocation(ctx context.Context, id int64) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		loc, err := s.locs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		n, err := s.usage.CountByLocation(ctx, loc.ID, loc.Slug)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrInUse
		}
		return s.locs.Delete(ctx, id)
	})
}

// -- Business settings --

func (s *Service) GetBusinessSettings(ctx context.Context) (*BusinessSettings, error) {
	return s.business.Get(ctx)
}

type BusinessSettingsPatch struct {
	Name          *string `json:"name"`
	ShowNameInNav *bool   `json:"show_name_in_nav"`
}

func (s *Service) UpdateBusinessSettings(ctx context.Context, p BusinessSettingsPatch) (*BusinessSettings, error) {
	var out *BusinessSettings
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		bs, err := s.business.Get(ctx)
		if err != nil {
			return err
		}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			bs.Name = &name
			if name == "" {
				bs.Name = nil
			}
		}
		if p.ShowNameInNav != nil {
			bs.ShowNameInNav = *p.ShowNameInNav
		}
		if err := s.business.Save(ctx, bs); err != nil {
			return err
		}
		out = bs
		return nil
	})
	return out, err
}
