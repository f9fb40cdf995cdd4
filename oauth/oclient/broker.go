package oclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Seann-Moser/oauthbroker/oauth/provider"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew is how long before expiry a token is treated as expired.
const DefaultRefreshSkew = 60 * time.Second

// ProviderLookup resolves provider configs by name.
type ProviderLookup interface {
	Lookup(name string) (provider.Config, error)
}

// Refresher runs refresh token grants.
type Refresher interface {
	Refresh(ctx context.Context, cfg provider.Config, refreshToken string) (TokenResponse, error)
}

// Broker hands out access tokens that stay valid for at least the refresh skew.
type Broker struct {
	store     Store
	providers ProviderLookup
	refresher Refresher
	skew      time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger

	flights singleflight.Group
}

type BrokerOption func(*Broker)

func WithRefreshSkew(d time.Duration) BrokerOption {
	return func(b *Broker) { b.skew = d }
}

// WithRefreshTimeout bounds a single refresh, independent of the caller's context.
func WithRefreshTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) { b.timeout = d }
}

func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) { b.log = l }
}

func NewBroker(store Store, providers ProviderLookup, refresher Refresher, opts ...BrokerOption) *Broker {
	b := &Broker{
		store:     store,
		providers: providers,
		refresher: refresher,
		skew:      DefaultRefreshSkew,
		timeout:   DefaultHTTPTimeout,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "broker")
	return b
}

// GetValidOAuthAccessToken returns an access token for the user's provider
// connection, refreshing it first when it expires within the skew.
//
// ErrNotConnected means there is nothing usable: the user never connected,
// no refresh token was issued, or the provider rejected the refresh token
// (the credential is then removed). Errors wrapping ErrTransient leave the
// stored credential untouched.
func (b *Broker) GetValidOAuthAccessToken(ctx context.Context, userID, providerName string) (string, error) {
	c, err := b.store.Get(ctx, userID, providerName)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if !c.ExpiringWithin(b.now(), b.skew) {
		cachedTokens.WithLabelValues(providerName).Inc()
		return c.AccessToken, nil
	}
	if c.RefreshToken == "" {
		return "", ErrNotConnected
	}

	// The flight outlives a caller that gives up; its result is still stored.
	ch := b.flights.DoChan(credentialKey(userID, providerName), func() (any, error) {
		return b.refresh(ctx, userID, providerName)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			sharedRefreshes.WithLabelValues(providerName).Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh runs inside the flight. It re-reads the credential since another
// flight may have refreshed it after the caller's read.
func (b *Broker) refresh(ctx context.Context, userID, providerName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	c, err := b.store.Get(ctx, userID, providerName)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if !c.ExpiringWithin(b.now(), b.skew) {
		return c.AccessToken, nil
	}
	if c.RefreshToken == "" {
		return "", ErrNotConnected
	}

	cfg, err := b.providers.Lookup(providerName)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	tr, err := b.refresher.Refresh(ctx, cfg, c.RefreshToken)
	if errors.Is(err, ErrRefreshRejected) {
		b.log.Warn("refresh token rejected, removing credential", "user_id", userID, "provider", providerName, "err", err)
		if derr := b.store.CompareAndDelete(ctx, userID, providerName, c.Version); derr != nil && !errors.Is(derr, ErrVersionConflict) {
			b.log.Error("failed to remove rejected credential", "user_id", userID, "provider", providerName, "err", derr)
		}
		return b.afterConflict(ctx, userID, providerName, ErrNotConnected)
	}
	if errors.Is(err, ErrClientRejected) {
		b.log.Error("provider rejected client credentials, keeping credential", "user_id", userID, "provider", providerName, "err", err)
		return "", err
	}
	if err != nil {
		b.log.Warn("token refresh failed", "user_id", userID, "provider", providerName, "err", err)
		return "", err
	}

	now := b.now()
	updated := c.Refreshed(tr, now)
	if updated.Expired(now) {
		return "", fmt.Errorf("%w: provider returned an expired token", ErrTransient)
	}
	if _, err := b.store.CompareAndSwap(ctx, updated); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			tokenRefreshes.WithLabelValues(providerName, outcomeConflict).Inc()
			return b.afterConflict(ctx, userID, providerName, fmt.Errorf("%w: credential changed during refresh", ErrTransient))
		}
		return "", fmt.Errorf("save refreshed credential: %w", err)
	}
	b.log.Debug("token refreshed", "user_id", userID, "provider", providerName, "expires_at", updated.ExpiresAt)
	return updated.AccessToken, nil
}

// afterConflict returns whatever a concurrent writer (usually a fresh
// authorization) left in the store if it is usable, and stale otherwise.
func (b *Broker) afterConflict(ctx context.Context, userID, providerName string, stale error) (string, error) {
	c, err := b.store.Get(ctx, userID, providerName)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if c.ExpiringWithin(b.now(), b.skew) {
		return "", stale
	}
	return c.AccessToken, nil
}
