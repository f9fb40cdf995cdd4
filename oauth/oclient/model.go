package oclient

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiresIn is assumed when a provider issues a refresh token but no expires_in.
const DefaultExpiresIn = time.Hour

var (
	// ErrNotFound is returned by stores when no credential exists.
	ErrNotFound = errors.New("credential not found")
	// ErrVersionConflict is returned when a conditional write lost to another writer.
	ErrVersionConflict = errors.New("credential version conflict")

	// ErrNotConnected means the user must (re)connect the provider.
	ErrNotConnected = errors.New("provider not connected")

	ErrExchangeRejected = errors.New("authorization code rejected")
	ErrRefreshRejected  = errors.New("refresh token rejected")
	// ErrClientRejected means the provider refused the client id or secret.
	// It is an operator problem and never invalidates a user's credential.
	ErrClientRejected = errors.New("provider rejected client credentials")
	// ErrTransient wraps network failures, timeouts and provider 5xx responses.
	ErrTransient = errors.New("transient token endpoint failure")
)

// StoredCredential is the persisted token set of one user for one provider.
type StoredCredential struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiringWithin reports whether fewer than skew remain before expiry.
// Credentials without a known expiry never expire.
func (c StoredCredential) ExpiringWithin(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Sub(now) < skew
}

// Expired reports whether the access token is past its expiry.
func (c StoredCredential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenResponse is the part of a token endpoint response the broker keeps.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	// ExpiresIn is zero when the provider did not send expires_in.
	ExpiresIn time.Duration
	Scope     string
}

func tokenResponseFrom(tok *oauth2.Token) TokenResponse {
	tr := TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	switch {
	case tok.ExpiresIn > 0:
		tr.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		// Form encoded responses only populate Expiry.
		tr.ExpiresIn = time.Until(tok.Expiry).Round(time.Second)
	}
	if s, ok := tok.Extra("scope").(string); ok {
		tr.Scope = s
	}
	return tr
}

// NewCredential builds the credential persisted after a successful code exchange.
func NewCredential(userID, provider string, tr TokenResponse, now time.Time) StoredCredential {
	c := StoredCredential{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Scope:        tr.Scope,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.ExpiresAt = expiresAt(tr, c.RefreshToken, now)
	return c
}

// Refreshed applies a refresh response. The refresh token is kept unless the
// provider rotated it.
func (c StoredCredential) Refreshed(tr TokenResponse, now time.Time) StoredCredential {
	c.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		c.RefreshToken = tr.RefreshToken
	}
	if tr.TokenType != "" {
		c.TokenType = tr.TokenType
	}
	if tr.Scope != "" {
		c.Scope = tr.Scope
	}
	c.ExpiresAt = expiresAt(tr, c.RefreshToken, now)
	c.UpdatedAt = now
	return c
}

func expiresAt(tr TokenResponse, refreshToken string, now time.Time) time.Time {
	switch {
	case tr.ExpiresIn > 0:
		return now.Add(tr.ExpiresIn)
	case refreshToken != "":
		return now.Add(DefaultExpiresIn)
	default:
		return time.Time{}
	}
}
