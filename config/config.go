package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process level configuration for the broker service.
type Config struct {
	Env        string `env:"APP_ENV" envDefault:"production"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// BaseURL is the public origin used to build callback URLs. Left empty the
	// service still starts; initiation fails with a configuration error.
	BaseURL string `env:"PUBLIC_BASE_URL"`

	SessionSecret      string `env:"SESSION_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"oauthbroker"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RefreshSkew time.Duration `env:"TOKEN_REFRESH_SKEW" envDefault:"60s"`
	HTTPTimeout time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"10s"`
	StateTTL    time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	SessionTTL  time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	SuccessRedirect string `env:"OAUTH_SUCCESS_REDIRECT" envDefault:"/"`
	ErrorRedirect   string `env:"OAUTH_ERROR_REDIRECT" envDefault:"/"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables instead of the
// process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.RefreshSkew < 0 {
		return Config{}, errors.New("TOKEN_REFRESH_SKEW must not be negative")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, errors.New("OAUTH_HTTP_TIMEOUT must be positive")
	}
	if cfg.StateTTL <= 0 {
		return Config{}, errors.New("OAUTH_STATE_TTL must be positive")
	}
	return cfg, nil
}

// IsDev reports whether the service runs in a development environment, which
// relaxes the Secure flag on cookies.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// EncryptionKey decodes TOKEN_ENCRYPTION_KEY.
func (c Config) EncryptionKey() ([]byte, error) {
	if c.TokenEncryptionKey == "" {
		return nil, errors.New("TOKEN_ENCRYPTION_KEY is not set")
	}
	key, err := base64.StdEncoding.DecodeString(c.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode TOKEN_ENCRYPTION_KEY: %w", err)
	}
	return key, nil
}
