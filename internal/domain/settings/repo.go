package settings

import (
	"context"

	"github.com/clinicsched/clinic/internal/domain/scheduling"
)

type Repository interface {
	// Get returns ErrNotFound when the row does not exist.
	Get(ctx context.Context) (*Settings, error)
	// Create inserts the row unless another writer did first, and returns
	// whichever row is stored.
	Create(ctx context.Context, types []scheduling.AppointmentType) (*Settings, error)
	Save(ctx context.Context, types []scheduling.AppointmentType) (*Settings, error)
	DeleteAll(ctx context.Context) error
}
