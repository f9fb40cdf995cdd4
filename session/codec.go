package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Seann-Moser/oauthbroker/utils"
)

// Codec signs and verifies the session cookie. The cookie value is
// base64(json) + "|" + base64(HMAC-SHA256).
type Codec struct {
	secret []byte
	ttl    time.Duration

	SameSite  http.SameSite
	UseDomain bool
	Insecure  bool
}

func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	return &Codec{secret: secret, ttl: ttl, SameSite: http.SameSiteLaxMode}, nil
}

func (c *Codec) sign(message string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Codec) verify(message, sig string) bool {
	return hmac.Equal([]byte(sig), []byte(c.sign(message)))
}

// Encode serializes and signs u.
func (c *Codec) Encode(u *UserSessionData) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	value := base64.URLEncoding.EncodeToString(data)
	return value + "|" + c.sign(value), nil
}

// Decode verifies the signature and expiry of a cookie value.
func (c *Codec) Decode(raw string) (*UserSessionData, error) {
	value, sig, ok := strings.Cut(raw, "|")
	if !ok || strings.Contains(sig, "|") {
		return nil, errors.New("invalid session cookie format")
	}
	if !c.verify(value, sig) {
		return nil, errors.New("invalid session signature")
	}
	data, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var u UserSessionData
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	if time.Now().Unix() > u.ExpiresAt {
		return nil, errors.New("session expired")
	}
	return &u, nil
}

// FromRequest reads and verifies the session cookie.
func (c *Codec) FromRequest(r *http.Request) (*UserSessionData, error) {
	ck, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, err
	}
	return c.Decode(ck.Value)
}

// SignIn issues a session cookie for userID that lasts for the codec TTL.
func (c *Codec) SignIn(w http.ResponseWriter, r *http.Request, userID string) (*UserSessionData, error) {
	u := &UserSessionData{
		UserID:    userID,
		SignedIn:  true,
		ExpiresAt: time.Now().Add(c.ttl).Unix(),
		Domain:    utils.GetDomain(r),
	}
	return u, c.SetCookie(w, u)
}

// SetCookie writes u as the session cookie.
func (c *Codec) SetCookie(w http.ResponseWriter, u *UserSessionData) error {
	value, err := c.Encode(u)
	if err != nil {
		return err
	}
	ck := &http.Cookie{
		Name:        sessionCookieName,
		Value:       value,
		Path:        "/",
		Expires:     time.Unix(u.ExpiresAt, 0),
		HttpOnly:    true,
		Secure:      !c.Insecure,
		SameSite:    c.SameSite,
		Partitioned: c.SameSite == http.SameSiteNoneMode,
	}
	if c.UseDomain {
		ck.Domain = u.Domain
	}
	http.SetCookie(w, ck)
	return nil
}

// Clear expires the session cookie.
func (c *Codec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !c.Insecure,
		SameSite: c.SameSite,
	})
}
