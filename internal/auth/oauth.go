package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	StateCookieName = "oauthstate"
	stateExpiry     = 20 * time.Minute

	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

var ErrUnverifiedEmail = errors.New("identity provider returned no verified email")

type googleUser struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

// GoogleProvider runs the OAuth authorization code flow against Google and
// reports the signed-in user's email.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return newGoogleProvider(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}, googleUserInfoURL)
}

func newGoogleProvider(config *oauth2.Config, userInfoURL string) *GoogleProvider {
	return &GoogleProvider{config: config, userInfoURL: userInfoURL}
}

func (p *GoogleProvider) Configured() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Email exchanges an authorization code and returns the user's verified email.
func (p *GoogleProvider) Email(ctx context.Context, code string) (string, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("code exchange failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed getting user info: status %d", resp.StatusCode)
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("failed decoding user info: %w", err)
	}
	if user.Email == "" || !user.VerifiedEmail {
		return "", ErrUnverifiedEmail
	}

	return user.Email, nil
}

// NewState returns a random value for the OAuth state parameter and the
// cookie that pins it to the browser.
func NewState(secure bool) (string, *http.Cookie, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	return state, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(stateExpiry),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}
