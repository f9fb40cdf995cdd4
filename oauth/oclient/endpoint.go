package oclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Seann-Moser/oauthbroker/oauth/provider"
	"golang.org/x/oauth2"
)

// DefaultHTTPTimeout bounds every call to a provider token endpoint.
const DefaultHTTPTimeout = 10 * time.Second

// TokenEndpoint performs authorization code and refresh token grants.
type TokenEndpoint struct {
	client  *http.Client
	timeout time.Duration
}

// NewTokenEndpoint uses client for outbound calls; nil means a new client
// limited to timeout.
func NewTokenEndpoint(client *http.Client, timeout time.Duration) *TokenEndpoint {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &TokenEndpoint{client: client, timeout: timeout}
}

func (e *TokenEndpoint) context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	return context.WithTimeout(ctx, e.timeout)
}

// Exchange trades an authorization code for tokens. redirectURI must be the
// value sent on the authorize request.
func (e *TokenEndpoint) Exchange(ctx context.Context, cfg provider.Config, code, redirectURI, verifier string) (TokenResponse, error) {
	ctx, cancel := e.context(ctx)
	defer cancel()

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := cfg.OAuth2(redirectURI).Exchange(ctx, code, opts...)
	if err != nil {
		err = classifyExchange(err)
		codeExchanges.WithLabelValues(cfg.Name, outcomeOf(err)).Inc()
		return TokenResponse{}, err
	}
	codeExchanges.WithLabelValues(cfg.Name, outcomeSuccess).Inc()
	return tokenResponseFrom(tok), nil
}

// Refresh runs a refresh_token grant.
func (e *TokenEndpoint) Refresh(ctx context.Context, cfg provider.Config, refreshToken string) (TokenResponse, error) {
	ctx, cancel := e.context(ctx)
	defer cancel()

	start := time.Now()
	tok, err := cfg.OAuth2("").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	refreshDuration.WithLabelValues(cfg.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		err = classifyRefresh(err)
		tokenRefreshes.WithLabelValues(cfg.Name, outcomeOf(err)).Inc()
		return TokenResponse{}, err
	}
	tokenRefreshes.WithLabelValues(cfg.Name, outcomeSuccess).Inc()
	return tokenResponseFrom(tok), nil
}

// revokedGrantCodes are the error codes saying the refresh token itself is
// dead. Slack reports revocation with its own codes.
var revokedGrantCodes = map[string]bool{
	"invalid_grant":         true,
	"invalid_refresh_token": true,
	"token_revoked":         true,
}

func retrieveError(err error) (*oauth2.RetrieveError, int) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return nil, 0
	}
	if re.Response != nil {
		return re, re.Response.StatusCode
	}
	return re, 0
}

func clientRejected(re *oauth2.RetrieveError) bool {
	return re.ErrorCode == "invalid_client" || re.ErrorCode == "unauthorized_client"
}

func retryable(re *oauth2.RetrieveError, status int) bool {
	switch {
	case re.ErrorCode == "temporarily_unavailable", re.ErrorCode == "server_error":
		return true
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	}
	return false
}

func describe(re *oauth2.RetrieveError, status int) string {
	if re.ErrorCode != "" {
		return re.ErrorCode
	}
	return fmt.Sprintf("status %d", status)
}

// classifyRefresh reports ErrRefreshRejected only when the provider says the
// refresh token is invalid or revoked; that is the one outcome allowed to
// remove a stored credential. Everything else keeps it.
func classifyRefresh(err error) error {
	re, status := retrieveError(err)
	switch {
	case re == nil:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case clientRejected(re):
		return fmt.Errorf("%w: %s", ErrClientRejected, re.ErrorCode)
	case revokedGrantCodes[re.ErrorCode]:
		return fmt.Errorf("%w: %s", ErrRefreshRejected, re.ErrorCode)
	}
	// A 4xx without a revocation code is usually a wrong token URL or a proxy page.
	return fmt.Errorf("%w: %s", ErrTransient, describe(re, status))
}

// classifyExchange treats any explicit refusal as a failed connection. A code
// is single use, so there is nothing to keep.
func classifyExchange(err error) error {
	re, status := retrieveError(err)
	switch {
	case re == nil:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case clientRejected(re):
		return fmt.Errorf("%w: %s", ErrClientRejected, re.ErrorCode)
	case retryable(re, status):
		return fmt.Errorf("%w: %s", ErrTransient, describe(re, status))
	case re.ErrorCode != "", status >= 400:
		// GitHub and Slack report grant errors with status 200 and an error body.
		return fmt.Errorf("%w: %s", ErrExchangeRejected, describe(re, status))
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrTransient) {
		return outcomeTransient
	}
	if errors.Is(err, ErrClientRejected) {
		return outcomeClientRejected
	}
	return outcomeRejected
}
