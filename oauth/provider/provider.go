package provider

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/oauth2"
)

// ErrUnsupportedProvider is returned for provider names missing from the registry.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ConfigurationError reports a provider whose client credentials are not set.
type ConfigurationError struct {
	Provider string
	Missing  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s is not configured: missing %s", e.Provider, strings.Join(e.Missing, ", "))
}

// Config holds the OAuth parameters of one provider.
type Config struct {
	Name string
	// EnvPrefix selects {EnvPrefix}_CLIENT_ID and {EnvPrefix}_CLIENT_SECRET.
	EnvPrefix string

	AuthorizeURL string
	TokenURL     string

	ClientID     string
	ClientSecret string

	Scopes         []string
	ScopeSeparator string
	ResponseType   string

	ExtraAuthorizeParams map[string]string

	PKCE      bool
	AuthStyle oauth2.AuthStyle
}

// Validate reports a *ConfigurationError when the client credentials are missing.
func (c Config) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, c.EnvPrefix+"_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, c.EnvPrefix+"_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Provider: c.Name, Missing: missing}
	}
	return nil
}

// Scope joins the configured scopes with the provider separator.
func (c Config) Scope() string {
	sep := c.ScopeSeparator
	if sep == "" {
		sep = " "
	}
	return strings.Join(c.Scopes, sep)
}

// OAuth2 builds the x/oauth2 client config for the given callback URL.
// Scopes are left out because the authorize URL carries them pre-joined.
func (c Config) OAuth2(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizeURL,
			TokenURL:  c.TokenURL,
			AuthStyle: c.AuthStyle,
		},
	}
}

// AuthCodeURL returns the authorize URL for one attempt. verifier is only
// used by PKCE providers.
func (c Config) AuthCodeURL(state, redirectURI, verifier string) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(c.ExtraAuthorizeParams)+3)
	if c.ResponseType != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", c.ResponseType))
	}
	if len(c.Scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", c.Scope()))
	}
	for _, k := range slices.Sorted(maps.Keys(c.ExtraAuthorizeParams)) {
		opts = append(opts, oauth2.SetAuthURLParam(k, c.ExtraAuthorizeParams[k]))
	}
	if c.PKCE && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.OAuth2(redirectURI).AuthCodeURL(state, opts...)
}

func (c Config) clone() Config {
	c.Scopes = slices.Clone(c.Scopes)
	c.ExtraAuthorizeParams = maps.Clone(c.ExtraAuthorizeParams)
	return c
}
