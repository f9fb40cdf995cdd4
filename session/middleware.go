package session

import (
	"log/slog"
	"net/http"
	"time"
)

// Middleware attaches a verified session, when present, to the request context.
// Requests without one pass through unchanged; handlers decide whether to reject.
func (c *Codec) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := c.FromRequest(r)
		if err != nil {
			if err != http.ErrNoCookie {
				slog.Debug("ignoring session cookie", "err", err)
				c.Clear(w)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(u.WithContext(r.Context())))
	})
}

// RequireUser rejects requests without a signed-in session with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := GetSession(r.Context())
		if err != nil || !u.Authenticated(time.Now()) {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
