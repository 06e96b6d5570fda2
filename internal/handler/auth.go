package handler

import (
	"context"
	"net/http"

	"github.com/abdusco/qrlink/internal/access"
	"github.com/abdusco/qrlink/internal/auth"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// IdentityProvider is the OAuth flow the sign-in routes delegate to.
type IdentityProvider interface {
	Configured() bool
	AuthCodeURL(state string) string
	Email(ctx context.Context, code string) (string, error)
}

type AuthHandler struct {
	provider      IdentityProvider
	sessions      *auth.Sessions
	guard         *access.Guard
	postSignInURL string
	secureCookies bool
}

func NewAuthHandler(provider IdentityProvider, sessions *auth.Sessions, guard *access.Guard, postSignInURL string, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		provider:      provider,
		sessions:      sessions,
		guard:         guard,
		postSignInURL: postSignInURL,
		secureCookies: secureCookies,
	}
}

// SignIn sends the browser to the identity provider's consent screen.
func (h *AuthHandler) SignIn(c echo.Context) error {
	if !h.provider.Configured() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sign-in is not configured")
	}

	state, cookie, err := auth.NewState(h.secureCookies)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)

	return c.Redirect(http.StatusTemporaryRedirect, h.provider.AuthCodeURL(state))
}

func (h *AuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	stateCookie, err := c.Cookie(auth.StateCookieName)
	if err != nil || stateCookie.Value == "" {
		log.Warn().Msg("oauth callback without state cookie")
		return c.Redirect(http.StatusTemporaryRedirect, signInPath)
	}
	c.SetCookie(&http.Cookie{
		Name:     auth.StateCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})

	if c.QueryParam("state") != stateCookie.Value {
		log.Warn().Msg("oauth state mismatch")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid oauth state")
	}

	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing authorization code")
	}

	email, err := h.provider.Email(ctx, code)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "sign-in failed").WithInternal(err)
	}

	if err := h.guard.Validate(email); err != nil {
		log.Warn().Str("email", email).Msg("sign-in refused, not an admin")
		return c.Redirect(http.StatusTemporaryRedirect, "/auth/unauthorized")
	}

	cookie, err := h.sessions.Cookie(email)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)

	log.Info().Str("email", email).Msg("signed in")

	return c.Redirect(http.StatusTemporaryRedirect, h.postSignInURL)
}

func (h *AuthHandler) SignOut(c echo.Context) error {
	c.SetCookie(h.sessions.ExpiredCookie())
	return c.Render(http.StatusOK, "signed_out", nil)
}

func (h *AuthHandler) Unauthorized(c echo.Context) error {
	return c.Render(http.StatusForbidden, "unauthorized", nil)
}
