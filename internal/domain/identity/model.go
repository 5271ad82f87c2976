package identity

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"
)

var ErrNotFound = errors.New("not found")

type Patient struct {
	ID          int64      `json:"id"`
	PRN         string     `json:"prn"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth civil.Date `json:"date_of_birth"`
	Gender      *string    `json:"gender"`
	Email       *string    `json:"email"`
	Phone       *string    `json:"phone"`
	Address     *string    `json:"address"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Provider struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Specialty *string   `json:"specialty"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Provider) FullName() string {
	return p.FirstName + " " + p.LastName
}

// User is a login account. Providers may link one.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	IsStaff      bool      `json:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountSpec describes a provider with a linked login, as ensured at
// bootstrap and created by the demo generator.
type AccountSpec struct {
	Username    string
	Password    string
	FirstName   string
	LastName    string
	Email       string
	Specialty   string
	Phone       string
	IsStaff     bool
	IsSuperuser bool
}

// BootstrapAccounts are kept present so a fresh install can always log in.
// They match providers A and B of the demo data.
func BootstrapAccounts() []AccountSpec {
	return []AccountSpec{
		{
			Username:  "ademouser",
			Password:  "DemoPass1!",
			FirstName: "Avery",
			LastName:  "Demouser",
			Email:     "avery.demouser@example.test",
			Specialty: "General Practice",
			Phone:     "(555) 0101-2001",
			IsStaff:   true,
		},
		{
			Username:    "cadminton",
			Password:    "AdminPass1!",
			FirstName:   "Clay",
			LastName:    "Adminton",
			Email:       "clay.adminton@example.test",
			Specialty:   "Administration",
			Phone:       "(555) 0102-2002",
			IsStaff:     true,
			IsSuperuser: true,
		},
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
