package state

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// TokenBytes is the amount of entropy in a state value.
	TokenBytes = 32
	// DefaultTTL bounds both the state cookie and the stored attempt.
	DefaultTTL = 10 * time.Minute

	cookiePrefix = "oauth_state_"
)

var (
	ErrStateMismatch = errors.New("oauth state mismatch")
	ErrStateExpired  = errors.New("oauth state expired or missing")
)

// Issue returns a new hex encoded state value.
func Issue() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CookieName is the name of the state cookie for provider.
func CookieName(provider string) string {
	return cookiePrefix + provider
}

// CallbackPath is the path the provider redirects back to.
func CallbackPath(provider string) string {
	return "/oauth/" + provider + "/callback"
}

// Guard binds state values to the browser and checks them on callback.
type Guard struct {
	// Insecure drops the Secure cookie flag for plain-http development.
	Insecure bool
	TTL      time.Duration
}

func (g Guard) ttl() time.Duration {
	if g.TTL <= 0 {
		return DefaultTTL
	}
	return g.TTL
}

// Bind sets the state cookie, readable only on the provider's callback path.
func (g Guard) Bind(w http.ResponseWriter, provider, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(provider),
		Value:    value,
		Path:     CallbackPath(provider),
		MaxAge:   int(g.ttl().Seconds()),
		HttpOnly: true,
		Secure:   !g.Insecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Validate compares the state query parameter with the bound cookie and
// returns the accepted value.
func (g Guard) Validate(r *http.Request, provider string) (string, error) {
	c, err := r.Cookie(CookieName(provider))
	if err != nil || c.Value == "" {
		return "", ErrStateExpired
	}
	got := r.URL.Query().Get("state")
	if got == "" {
		return "", ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(c.Value)) != 1 {
		return "", ErrStateMismatch
	}
	return got, nil
}

// Clear expires the state cookie.
func (g Guard) Clear(w http.ResponseWriter, provider string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(provider),
		Value:    "",
		Path:     CallbackPath(provider),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   !g.Insecure,
		SameSite: http.SameSiteLaxMode,
	})
}
