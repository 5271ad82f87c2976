package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountStore is implemented by the identity repository.
type AccountStore interface {
	FindAccount(ctx context.Context, username string) (*Account, error)
	GetAccount(ctx context.Context, userID int64) (*Account, error)
	SetPasswordHash(ctx context.Context, userID int64, hash string) error
}

// ProviderSummary is returned with a successful login.
type ProviderSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty,omitempty"`
}

type ProviderLookup interface {
	ProviderSummary(ctx context.Context, id int64) (*ProviderSummary, error)
}

type Handler struct {
	accounts    AccountStore
	providers   ProviderLookup
	issuer      *TokenIssuer
	revocations RevocationStore
	key         []byte
	logger      zerolog.Logger
}

func NewHandler(accounts AccountStore, providers ProviderLookup, issuer *TokenIssuer, revocations RevocationStore, key []byte, logger zerolog.Logger) *Handler {
	return &Handler{
		accounts:    accounts,
		providers:   providers,
		issuer:      issuer,
		revocations: revocations,
		key:         key,
		logger:      logger,
	}
}

// RegisterPublic mounts endpoints reachable without a token.
func (h *Handler) RegisterPublic(g *echo.Group) {
	g.POST("/auth/login", h.Login)
	g.POST("/auth/verify", h.Verify)
}

// RegisterRoutes mounts endpoints that need an authenticated caller.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/logout", h.Logout)
	g.POST("/auth/change-password", h.ChangePassword)
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Access    string           `json:"access"`
	ExpiresAt time.Time        `json:"expires_at"`
	Provider  *ProviderSummary `json:"provider"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	acct, err := h.accounts.FindAccount(ctx, req.Username)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		h.logger.Error().Err(err).Msg("login lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	if acct == nil || !acct.IsActive || !CheckPassword(acct.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if acct.ProviderID == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no linked provider account found")
	}

	provider, err := h.providers.ProviderSummary(ctx, *acct.ProviderID)
	if err != nil {
		h.logger.Error().Err(err).Int64("provider_id", *acct.ProviderID).Msg("login provider lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	token, claims, err := h.issuer.Issue(acct)
	if err != nil {
		h.logger.Error().Err(err).Msg("issue token")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	h.logger.Info().Int64("user_id", acct.UserID).Msg("login")

	return c.JSON(http.StatusOK, loginResponse{
		Access:    token,
		ExpiresAt: claims.ExpiresAt.Time,
		Provider:  provider,
	})
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	claims, err := ParseToken(req.Token, h.key)
	if err == nil && h.revocations != nil {
		var revoked bool
		revoked, err = h.revocations.IsRevoked(c.Request().Context(), claims.ID)
		if err == nil && revoked {
			err = errors.New("revoked")
		}
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "token is invalid or expired")
	}
	return c.JSON(http.StatusOK, map[string]string{"detail": "token is valid"})
}

func (h *Handler) Logout(c echo.Context) error {
	claims, ok := c.Get("claims").(*Claims)
	if !ok || claims.ID == "" {
		return c.NoContent(http.StatusNoContent)
	}
	if h.revocations != nil {
		if err := h.revocations.Revoke(c.Request().Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			h.logger.Error().Err(err).Msg("revoke token")
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
	}
	return c.NoContent(http.StatusNoContent)
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.NewPassword != req.ConfirmPassword {
		return echo.NewHTTPError(http.StatusBadRequest, "passwords do not match")
	}
	if err := ValidatePasswordStrength(req.NewPassword); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	uid := UserIDFromContext(ctx)
	acct, err := h.accounts.GetAccount(ctx, uid)
	if errors.Is(err, ErrAccountNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	}
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", uid).Msg("change password lookup")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	if !CheckPassword(acct.PasswordHash, req.OldPassword) {
		return echo.NewHTTPError(http.StatusBadRequest, "old password is incorrect")
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	if err := h.accounts.SetPasswordHash(ctx, uid, hash); err != nil {
		h.logger.Error().Err(err).Int64("user_id", uid).Msg("change password")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, map[string]string{"detail": "password updated"})
}
