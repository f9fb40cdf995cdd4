package session

import (
	"context"
	"errors"
	"time"
)

type contextKey string

const sessionKey contextKey = "USER_SESSION_DATA"

const sessionCookieName = "session"

var ErrNoSession = errors.New("no session in context")

// UserSessionData holds the signed-in user of a browser session.
type UserSessionData struct {
	UserID    string `json:"user_id"`
	SignedIn  bool   `json:"signed_in"`
	ExpiresAt int64  `json:"expires_at"`
	Domain    string `json:"domain,omitempty"`
}

// Authenticated reports whether the session belongs to a signed-in user and has not expired.
func (u *UserSessionData) Authenticated(now time.Time) bool {
	return u != nil && u.SignedIn && u.UserID != "" && now.Unix() <= u.ExpiresAt
}

// WithContext attaches session data to context
func (u *UserSessionData) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionKey, u)
}

func GetSession(ctx context.Context) (*UserSessionData, error) {
	u, ok := ctx.Value(sessionKey).(*UserSessionData)
	if !ok || u == nil {
		return nil, ErrNoSession
	}
	return u, nil
}

// UserID returns the signed-in user attached to ctx.
func UserID(ctx context.Context) (string, bool) {
	u, err := GetSession(ctx)
	if err != nil || !u.Authenticated(time.Now()) {
		return "", false
	}
	return u.UserID, true
}
