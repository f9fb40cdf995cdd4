package oauthbroker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Seann-Moser/oauthbroker/oauth/connect"
	"github.com/Seann-Moser/oauthbroker/oauth/oclient"
	"github.com/Seann-Moser/oauthbroker/oauth/provider"
	"github.com/Seann-Moser/oauthbroker/oauth/state"
	"github.com/Seann-Moser/oauthbroker/session"
	"golang.org/x/oauth2"
)

// Options wires a Credentials. Providers, Store, Attempts and Sessions are required.
type Options struct {
	Providers *provider.Registry
	Store     oclient.Store
	Attempts  state.AttemptStore
	Sessions  *session.Codec

	// HTTPClient is used for token endpoint calls. nil means a new client
	// limited to HTTPTimeout.
	HTTPClient  *http.Client
	HTTPTimeout time.Duration
	RefreshSkew time.Duration

	Connect connect.Options
}

// Credentials connects users to third-party providers and hands out valid
// access tokens for those connections.
type Credentials struct {
	providers *provider.Registry
	sessions  *session.Codec
	flow      *connect.Handler
	broker    *oclient.Broker
}

func NewCredentials(opts Options) (*Credentials, error) {
	switch {
	case opts.Providers == nil:
		return nil, errors.New("credentials: provider registry is required")
	case opts.Store == nil:
		return nil, errors.New("credentials: credential store is required")
	case opts.Attempts == nil:
		return nil, errors.New("credentials: attempt store is required")
	case opts.Sessions == nil:
		return nil, errors.New("credentials: session codec is required")
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = oclient.DefaultHTTPTimeout
	}
	if opts.RefreshSkew <= 0 {
		opts.RefreshSkew = oclient.DefaultRefreshSkew
	}

	endpoint := oclient.NewTokenEndpoint(opts.HTTPClient, opts.HTTPTimeout)
	return &Credentials{
		providers: opts.Providers,
		sessions:  opts.Sessions,
		flow:      connect.NewHandler(opts.Providers, opts.Attempts, opts.Store, endpoint, opts.Connect),
		broker: oclient.NewBroker(opts.Store, opts.Providers, endpoint,
			oclient.WithRefreshSkew(opts.RefreshSkew),
			oclient.WithRefreshTimeout(opts.HTTPTimeout),
		),
	}, nil
}

// GetValidOAuthAccessToken returns a bearer token for the user's connection to
// providerName that stays valid for at least the refresh skew.
func (c *Credentials) GetValidOAuthAccessToken(ctx context.Context, userID, providerName string) (string, error) {
	cfg, err := c.providers.Lookup(providerName)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", connect.ErrUnauthenticated
	}
	return c.broker.GetValidOAuthAccessToken(ctx, userID, cfg.Name)
}

// Authorize sets the Authorization header of req for the user's connection.
func (c *Credentials) Authorize(req *http.Request, userID, providerName string) error {
	token, err := c.GetValidOAuthAccessToken(req.Context(), userID, providerName)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// TokenSource adapts the broker for libraries built on golang.org/x/oauth2.
func (c *Credentials) TokenSource(ctx context.Context, userID, providerName string) oauth2.TokenSource {
	return &brokerSource{ctx: ctx, c: c, userID: userID, provider: strings.ToLower(providerName)}
}

// Client returns an HTTP client that authorizes every request as userID.
// Tokens are asked from the broker per request, so refreshes are picked up.
func (c *Credentials) Client(ctx context.Context, userID, providerName string) *http.Client {
	return &http.Client{Transport: &oauth2.Transport{Source: c.TokenSource(ctx, userID, providerName)}}
}

type brokerSource struct {
	ctx      context.Context
	c        *Credentials
	userID   string
	provider string
}

func (s *brokerSource) Token() (*oauth2.Token, error) {
	token, err := s.c.GetValidOAuthAccessToken(s.ctx, s.userID, s.provider)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// Register mounts the connect endpoints on mux without session handling.
func (c *Credentials) Register(mux *http.ServeMux) {
	c.flow.Register(mux)
}

// Handler serves the connect endpoints behind the session middleware.
func (c *Credentials) Handler() http.Handler {
	mux := http.NewServeMux()
	c.Register(mux)
	return c.Middleware(mux)
}

// Middleware attaches the signed-in user, if any, to requests.
func (c *Credentials) Middleware(next http.Handler) http.Handler {
	return c.sessions.Middleware(next)
}
