package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 60*time.Second, cfg.RefreshSkew)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 10*time.Minute, cfg.StateTTL)
	assert.Empty(t, cfg.BaseURL)
	assert.False(t, cfg.IsDev())
}

func TestLoadFromTrimsBaseURL(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PUBLIC_BASE_URL": " https://agent.example.com/ ",
		"APP_ENV":         "development",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://agent.example.com", cfg.BaseURL)
	assert.True(t, cfg.IsDev())
}

func TestLoadFromRejectsBadDurations(t *testing.T) {
	_, err := LoadFrom(map[string]string{"OAUTH_HTTP_TIMEOUT": "0s"})
	assert.Error(t, err)

	_, err = LoadFrom(map[string]string{"TOKEN_REFRESH_SKEW": "-1s"})
	assert.Error(t, err)

	_, err = LoadFrom(map[string]string{"OAUTH_STATE_TTL": "soon"})
	assert.Error(t, err)
}

func TestEncryptionKey(t *testing.T) {
	_, err := Config{}.EncryptionKey()
	assert.Error(t, err)

	raw := make([]byte, 32)
	key, err := Config{TokenEncryptionKey: base64.StdEncoding.EncodeToString(raw)}.EncryptionKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = Config{TokenEncryptionKey: "%%%"}.EncryptionKey()
	assert.Error(t, err)
}
