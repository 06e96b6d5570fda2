package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName  = "auth_token"
	tokenExpiry = 30 * 24 * time.Hour // 1 month
)

var ErrInvalidToken = errors.New("invalid session token")

// Sessions signs and verifies session tokens. A token only carries the
// signed-in email; admin status is evaluated on every request.
type Sessions struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func NewSessions(secret string, secureCookies bool) *Sessions {
	return &Sessions{
		secret: []byte(secret),
		secure: secureCookies,
		now:    time.Now,
	}
}

func (s *Sessions) Sign(email string) (string, error) {
	now := s.now()
	claims := &jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the email the token was issued for.
func (s *Sessions) Verify(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Subject, nil
}

func (s *Sessions) Cookie(email string) (*http.Cookie, error) {
	token, err := s.Sign(email)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(tokenExpiry.Seconds()),
	}, nil
}

func (s *Sessions) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	}
}
