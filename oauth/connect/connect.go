package connect

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Seann-Moser/oauthbroker/oauth/oclient"
	"github.com/Seann-Moser/oauthbroker/oauth/provider"
	"github.com/Seann-Moser/oauthbroker/oauth/state"
	"github.com/Seann-Moser/oauthbroker/utils"
	"golang.org/x/oauth2"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrMissingBaseURL  = errors.New("public base URL is not configured")
	ErrMissingCode     = errors.New("authorization code missing")
)

// Registry is the read side of the provider table.
type Registry interface {
	Lookup(name string) (provider.Config, error)
	Names() []string
}

// Exchanger trades authorization codes for tokens.
type Exchanger interface {
	Exchange(ctx context.Context, cfg provider.Config, code, redirectURI, verifier string) (oclient.TokenResponse, error)
}

type Options struct {
	// BaseURL is the public origin callbacks are built from.
	BaseURL         string
	SuccessRedirect string
	ErrorRedirect   string
	StateTTL        time.Duration
	// Insecure drops the Secure flag from state cookies.
	Insecure bool
}

// Handler drives the authorization code flow: it starts attempts, completes
// callbacks and manages a user's connections.
type Handler struct {
	providers Registry
	attempts  state.AttemptStore
	store     oclient.Store
	exchanger Exchanger
	guard     state.Guard
	opts      Options
	now       func() time.Time
	log       *slog.Logger
}

func NewHandler(providers Registry, attempts state.AttemptStore, store oclient.Store, exchanger Exchanger, opts Options) *Handler {
	if opts.StateTTL <= 0 {
		opts.StateTTL = state.DefaultTTL
	}
	if opts.SuccessRedirect == "" {
		opts.SuccessRedirect = "/"
	}
	if opts.ErrorRedirect == "" {
		opts.ErrorRedirect = "/"
	}
	return &Handler{
		providers: providers,
		attempts:  attempts,
		store:     store,
		exchanger: exchanger,
		guard:     state.Guard{Insecure: opts.Insecure, TTL: opts.StateTTL},
		opts:      opts,
		now:       time.Now,
		log:       slog.Default().With("component", "connect"),
	}
}

// Initiate records a new attempt for userID and returns the provider's
// authorize URL. The caller binds attempt.State to the browser.
func (h *Handler) Initiate(ctx context.Context, userID, providerName string) (string, *state.Attempt, error) {
	if userID == "" {
		return "", nil, ErrUnauthenticated
	}
	if h.opts.BaseURL == "" {
		return "", nil, ErrMissingBaseURL
	}
	cfg, err := h.providers.Lookup(providerName)
	if err != nil {
		return "", nil, err
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}

	value, err := state.Issue()
	if err != nil {
		return "", nil, err
	}
	a := state.Attempt{
		State:       value,
		Provider:    cfg.Name,
		UserID:      userID,
		RedirectURI: utils.CallbackURL(h.opts.BaseURL, cfg.Name),
		CreatedAt:   h.now().UTC(),
	}
	if cfg.PKCE {
		a.CodeVerifier = oauth2.GenerateVerifier()
	}
	if err := h.attempts.Save(ctx, a, h.opts.StateTTL); err != nil {
		return "", nil, err
	}
	return cfg.AuthCodeURL(a.State, a.RedirectURI, a.CodeVerifier), &a, nil
}

// Complete consumes the attempt behind a validated state value, exchanges
// code and stores the resulting credential. sessionUserID, when known, must
// match the user that started the attempt.
func (h *Handler) Complete(ctx context.Context, providerName, stateValue, code, sessionUserID string) (*oclient.StoredCredential, error) {
	cfg, err := h.providers.Lookup(providerName)
	if err != nil {
		return nil, err
	}
	a, err := h.attempts.Take(ctx, stateValue)
	if err != nil {
		return nil, err
	}
	if a.Provider != cfg.Name {
		return nil, state.ErrStateMismatch
	}
	if sessionUserID != "" && sessionUserID != a.UserID {
		return nil, state.ErrStateMismatch
	}
	if code == "" {
		return nil, ErrMissingCode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr, err := h.exchanger.Exchange(ctx, cfg, code, a.RedirectURI, a.CodeVerifier)
	if err != nil {
		return nil, err
	}
	cred, err := h.store.Put(ctx, oclient.NewCredential(a.UserID, cfg.Name, tr, h.now().UTC()))
	if err != nil {
		return nil, err
	}
	h.log.Info("provider connected", "user_id", a.UserID, "provider", cfg.Name, "scope", cred.Scope)
	return cred, nil
}

// Disconnect removes the user's credential for the provider.
func (h *Handler) Disconnect(ctx context.Context, userID, providerName string) error {
	cfg, err := h.providers.Lookup(providerName)
	if err != nil {
		return err
	}
	if err := h.store.Delete(ctx, userID, cfg.Name); err != nil {
		return err
	}
	h.log.Info("provider disconnected", "user_id", userID, "provider", cfg.Name)
	return nil
}

// Connections lists the providers the user has connected and all supported ones.
type Connections struct {
	Connected []string `json:"connected"`
	Available []string `json:"available"`
}

func (h *Handler) Connections(ctx context.Context, userID string) (Connections, error) {
	connected, err := h.store.ListProviders(ctx, userID)
	if err != nil {
		return Connections{}, err
	}
	if connected == nil {
		connected = []string{}
	}
	return Connections{Connected: connected, Available: h.providers.Names()}, nil
}
