package provider

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

type clientEnv struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Registry is the immutable table of supported providers.
type Registry struct {
	providers map[string]Config
}

// NewRegistry indexes the given configs by name. Duplicate or empty names are rejected.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{providers: make(map[string]Config, len(configs))}
	for _, c := range configs {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return nil, fmt.Errorf("provider with empty name")
		}
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		if c.AuthorizeURL == "" || c.TokenURL == "" {
			return nil, fmt.Errorf("provider %q: authorize and token URLs are required", name)
		}
		c.Name = name
		r.providers[name] = c.clone()
	}
	return r, nil
}

// Load resolves client credentials for every config from environ (the process
// environment when environ is nil) and builds a registry. A provider without
// credentials stays registered and reports a *ConfigurationError from Validate.
func Load(configs []Config, environ map[string]string) (*Registry, error) {
	resolved := make([]Config, 0, len(configs))
	for _, c := range configs {
		creds, err := env.ParseAsWithOptions[clientEnv](env.Options{
			Prefix:      c.EnvPrefix + "_",
			Environment: environ,
		})
		if err != nil {
			return nil, fmt.Errorf("parse %s credentials: %w", c.Name, err)
		}
		c.ClientID = strings.TrimSpace(creds.ClientID)
		c.ClientSecret = strings.TrimSpace(creds.ClientSecret)
		if err := c.Validate(); err != nil {
			slog.Warn("oauth provider disabled", "provider", c.Name, "err", err)
		}
		resolved = append(resolved, c)
	}
	return NewRegistry(resolved)
}

// Lookup returns a copy of the named provider config.
func (r *Registry) Lookup(name string) (Config, error) {
	c, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return c.clone(), nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
