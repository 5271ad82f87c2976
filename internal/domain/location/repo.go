package location

import "context"

type LocationRepository interface {
	List(ctx context.Context, activeOnly bool) ([]*Location, error)
	GetByID(ctx context.Context, id int64) (*Location, error)
	GetBySlug(ctx context.Context, slug string) (*Location, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	// Create inserts loc and its hours rows.
	Create(ctx context.Context, loc *Location) error
	// Update saves loc and rewrites the office slug of its appointments.
	Update(ctx context.Context, loc *Location) error
	UpsertHours(ctx context.Context, locationID int64, hours []Hours) error
	GetHours(ctx context.Context, locationID int64, weekday string) (*Hours, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
}

type BusinessSettingsRepository interface {
	// Get returns the settings row, creating it when absent.
	Get(ctx context.Context) (*BusinessSettings, error)
	Save(ctx context.Context, s *BusinessSettings) error
	Reset(ctx context.Context, s *BusinessSettings) error
}

// UsageCounter reports how many appointments reference a location.
type UsageCounter interface {
	CountByLocation(ctx context.Context, locationID int64, slug string) (int, error)
}
