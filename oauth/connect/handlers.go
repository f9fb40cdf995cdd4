package connect

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Seann-Moser/oauthbroker/oauth/oclient"
	"github.com/Seann-Moser/oauthbroker/oauth/provider"
	"github.com/Seann-Moser/oauthbroker/oauth/state"
	"github.com/Seann-Moser/oauthbroker/session"
	"github.com/Seann-Moser/oauthbroker/utils"
)

// Register mounts the flow endpoints on mux. Requests must already pass
// through the session middleware.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /oauth/{provider}/initiate", h.handleInitiate)
	mux.HandleFunc("GET /oauth/{provider}/callback", h.handleCallback)
	mux.Handle("DELETE /oauth/{provider}", session.RequireUser(http.HandlerFunc(h.handleDisconnect)))
	mux.Handle("GET /oauth/connections", session.RequireUser(http.HandlerFunc(h.handleConnections)))
}

func providerName(r *http.Request) string {
	return strings.ToLower(r.PathValue("provider"))
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	name := providerName(r)
	userID, _ := session.UserID(r.Context())
	authURL, a, err := h.Initiate(r.Context(), userID, name)
	if err != nil {
		h.writeFailure(w, r, name, err)
		return
	}
	h.guard.Bind(w, a.Provider, a.State)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	name := providerName(r)
	// The state cookie is single use whatever the outcome.
	h.guard.Clear(w, name)

	value, err := h.guard.Validate(r, name)
	if err != nil {
		h.log.Warn("rejected oauth callback", "provider", name, "err", err)
		h.redirectError(w, r, name, "invalid_state")
		return
	}
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		if _, err := h.attempts.Take(r.Context(), value); err != nil && !errors.Is(err, state.ErrStateExpired) {
			h.log.Error("failed to discard attempt", "provider", name, "err", err)
		}
		h.log.Info("authorization declined", "provider", name, "error", providerErr)
		h.redirectError(w, r, name, "access_denied")
		return
	}

	sessionUser, _ := session.UserID(r.Context())
	if _, err := h.Complete(r.Context(), name, value, q.Get("code"), sessionUser); err != nil {
		code := callbackErrorCode(err)
		h.log.Warn("oauth callback failed", "provider", name, "reason", code, "err", err)
		h.redirectError(w, r, name, code)
		return
	}
	http.Redirect(w, r, utils.WithQuery(h.opts.SuccessRedirect, url.Values{"connected": {name}}), http.StatusFound)
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())
	if err := h.Disconnect(r.Context(), userID, providerName(r)); err != nil {
		h.writeFailure(w, r, providerName(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConnections(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())
	c, err := h.Connections(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, name, code string) {
	target := utils.WithQuery(h.opts.ErrorRedirect, url.Values{"provider": {name}, "error": {code}})
	http.Redirect(w, r, target, http.StatusFound)
}

// statusFor maps flow errors to HTTP status codes.
func statusFor(err error) int {
	var cfgErr *provider.ConfigurationError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr), errors.Is(err, ErrMissingBaseURL):
		return http.StatusInternalServerError
	case errors.Is(err, oclient.ErrTransient):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func callbackErrorCode(err error) string {
	var cfgErr *provider.ConfigurationError
	switch {
	case errors.Is(err, state.ErrStateExpired), errors.Is(err, state.ErrStateMismatch):
		return "invalid_state"
	case errors.Is(err, provider.ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, ErrMissingCode), errors.Is(err, oclient.ErrExchangeRejected):
		return "exchange_failed"
	case errors.Is(err, oclient.ErrTransient):
		return "provider_unavailable"
	case errors.As(err, &cfgErr), errors.Is(err, oclient.ErrClientRejected):
		return "not_configured"
	}
	return "server_error"
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, name string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		// Configuration details stay in the log.
		h.log.Error("oauth request failed", "provider", name, "path", r.URL.Path, "err", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

// writeJSON helper sends a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError helper sends a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
