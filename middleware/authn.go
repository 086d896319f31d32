package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	psso "github.com/pilab-dev/partner-sso"
	"github.com/pilab-dev/partner-sso/domain"
	"github.com/pilab-dev/partner-sso/services"
)

// sessionContextKey is the echo context key holding the authenticated *Session.
const sessionContextKey = "psso_session"

var (
	ErrNoCredentials  = errors.New("no bearer token")
	ErrSessionRevoked = errors.New("session revoked")
)

// Session is an authenticated local session.
type Session struct {
	UserID  string
	TokenID string
	Role    domain.LocalRole
	Source  domain.LoginSource
}

// Authenticator validates locally minted session tokens.
type Authenticator struct {
	signer   *psso.TokenSigner
	sessions domain.SessionRepository
}

// NewAuthenticator creates an Authenticator. With a nil sessions repository
// revocation is not checked.
func NewAuthenticator(signer *psso.TokenSigner, sessions domain.SessionRepository) *Authenticator {
	return &Authenticator{signer: signer, sessions: sessions}
}

// Authenticate validates the Bearer token of an Authorization header value.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (*Session, error) {
	if authHeader == "" {
		return nil, ErrNoCredentials
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, errors.New("invalid authorization header format: expected Bearer token")
	}

	var claims services.SessionClaims
	if _, err := a.signer.Parse(token, &claims); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid token: no subject")
	}

	if a.sessions != nil {
		stored, err := a.sessions.GetSessionByTokenID(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("session lookup: %w", err)
		}
		if stored.IsRevoked {
			return nil, ErrSessionRevoked
		}
	}

	return &Session{UserID: claims.Subject, TokenID: claims.ID, Role: claims.Role, Source: claims.Source}, nil
}

// SessionAuth rejects requests without a valid session token with 401.
func SessionAuth(a *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session, err := a.Authenticate(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="partner-sso"`)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_session"})
			}
			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

// SessionFromContext returns the session SessionAuth stored on c.
func SessionFromContext(c echo.Context) (*Session, bool) {
	session, ok := c.Get(sessionContextKey).(*Session)
	return session, ok && session != nil
}
