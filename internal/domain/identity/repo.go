package identity

import "context"

type PatientRepository interface {
	GetByID(ctx context.Context, id int64) (*Patient, error)
	List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error)
	Create(ctx context.Context, p *Patient) error
	// CreateMany inserts patients in one round trip and sets their IDs.
	CreateMany(ctx context.Context, patients []*Patient) error
	DeleteAll(ctx context.Context) error
}

type ProviderRepository interface {
	GetByID(ctx context.Context, id int64) (*Provider, error)
	GetByUserID(ctx context.Context, userID int64) (*Provider, error)
	List(ctx context.Context, search string, limit, offset int) ([]*Provider, int, error)
	Create(ctx context.Context, p *Provider) error
	// DeleteAll removes every provider together with its linked user.
	DeleteAll(ctx context.Context) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
}
