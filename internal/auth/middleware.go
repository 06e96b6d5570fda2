package auth

import (
	"strings"

	"github.com/abdusco/qrlink/internal"
	"github.com/abdusco/qrlink/internal/access"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const principalKey = "principal"

type Authenticator struct {
	sessions *Sessions
	guard    *access.Guard
}

func NewAuthenticator(sessions *Sessions, guard *access.Guard) *Authenticator {
	return &Authenticator{sessions: sessions, guard: guard}
}

// Middleware attaches the request's Principal to the context. Requests
// without a valid session get the zero Principal; gating is left to
// RequireAdmin.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	type strategy func(c echo.Context) (string, bool)
	strategies := []strategy{
		a.fromCookie,
		a.fromBearer,
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, s := range strategies {
				if email, ok := s(c); ok {
					c.Set(principalKey, a.guard.Principal(email))
					break
				}
			}
			return next(c)
		}
	}
}

func (a *Authenticator) fromCookie(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	email, err := a.sessions.Verify(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("rejected session cookie")
		return "", false
	}

	if refreshed, err := a.sessions.Cookie(email); err == nil {
		c.SetCookie(refreshed)
	}

	return email, true
}

func (a *Authenticator) fromBearer(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	email, err := a.sessions.Verify(token)
	if err != nil {
		log.Debug().Err(err).Msg("rejected bearer token")
		return "", false
	}

	return email, true
}

func PrincipalFrom(c echo.Context) internal.Principal {
	p, _ := c.Get(principalKey).(internal.Principal)
	return p
}

// RequireAdmin rejects requests whose Principal is missing or not an admin.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := PrincipalFrom(c)
		if p.Email == "" {
			return internal.ErrUnauthenticated
		}
		if !p.IsAdmin {
			log.Warn().Str("email", p.Email).Str("path", c.Path()).Msg("non-admin access denied")
			return internal.ErrUnauthorized
		}
		return next(c)
	}
}
