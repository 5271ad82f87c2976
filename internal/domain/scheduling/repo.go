package scheduling

import "context"

// AppointmentRepository persists appointments.
type AppointmentRepository interface {
	OverlapFinder
	Create(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
	CreateMany(ctx context.Context, items []*Appointment) (int64, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	CountByLocation(ctx context.Context, locationID int64, slug string) (int, error)
	LockProvider(ctx context.Context, providerID int64) error
	// LockAll blocks every other appointment write until the transaction
	// in ctx ends.
	LockAll(ctx context.Context) error
}
