package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "clinic-server"

const (
	RoleStaff     = "staff"
	RoleSuperuser = "superuser"
	RoleProvider  = "provider"
)

type Claims struct {
	jwt.RegisteredClaims
	ProviderID *int64   `json:"provider_id,omitempty"`
	Roles      []string `json:"roles"`
}

func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Account is what the login flow needs to know about a user.
type Account struct {
	UserID       int64
	Username     string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
	IsActive     bool
	ProviderID   *int64
}

func (a *Account) Roles() []string {
	var roles []string
	if a.IsStaff {
		roles = append(roles, RoleStaff)
	}
	if a.IsSuperuser {
		roles = append(roles, RoleSuperuser)
	}
	if a.ProviderID != nil {
		roles = append(roles, RoleProvider)
	}
	return roles
}

type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, ttl: ttl, now: time.Now}
}

// Issue signs an access token for the account and returns it with its
// claims, so callers can report the expiry.
func (i *TokenIssuer) Issue(acct *Account) (string, *Claims, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(acct.UserID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		ProviderID: acct.ProviderID,
		Roles:      acct.Roles(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}
