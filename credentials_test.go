package oauthbroker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Seann-Moser/oauthbroker/oauth/connect"
	"github.com/Seann-Moser/oauthbroker/oauth/oclient"
	"github.com/Seann-Moser/oauthbroker/oauth/provider"
	"github.com/Seann-Moser/oauthbroker/oauth/state"
	"github.com/Seann-Moser/oauthbroker/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestCredentials(t *testing.T, tokenURL string) (*Credentials, *oclient.MemoryStore) {
	t.Helper()
	reg, err := provider.NewRegistry([]provider.Config{{
		Name:         "gmail",
		AuthorizeURL: "https://accounts.example.com/auth",
		TokenURL:     tokenURL,
		ClientID:     "id",
		ClientSecret: "secret",
		AuthStyle:    oauth2.AuthStyleInParams,
	}})
	require.NoError(t, err)
	codec, err := session.NewCodec([]byte("credentials-test-secret"), time.Hour)
	require.NoError(t, err)
	store := oclient.NewMemoryStore()

	c, err := NewCredentials(Options{
		Providers: reg,
		Store:     store,
		Attempts:  state.NewMemoryAttemptStore(),
		Sessions:  codec,
		Connect:   connect.Options{BaseURL: "https://agent.example.com"},
	})
	require.NoError(t, err)
	return c, store
}

func putCredential(t *testing.T, store oclient.Store, access string, expiresAt time.Time) {
	t.Helper()
	_, err := store.Put(context.Background(), oclient.StoredCredential{
		UserID:       "user-1",
		Provider:     "gmail",
		AccessToken:  access,
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	})
	require.NoError(t, err)
}

func TestNewCredentialsRequiresDependencies(t *testing.T) {
	_, err := NewCredentials(Options{})
	assert.Error(t, err)
}

func TestGetValidOAuthAccessTokenCached(t *testing.T) {
	c, store := newTestCredentials(t, "http://127.0.0.1:1/token")
	putCredential(t, store, "fresh-access", time.Now().Add(time.Hour))

	tok, err := c.GetValidOAuthAccessToken(context.Background(), "user-1", "GMAIL")
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", tok)

	_, err = c.GetValidOAuthAccessToken(context.Background(), "user-1", "myspace")
	assert.ErrorIs(t, err, provider.ErrUnsupportedProvider)

	_, err = c.GetValidOAuthAccessToken(context.Background(), "user-2", "gmail")
	assert.ErrorIs(t, err, oclient.ErrNotConnected)
}

func TestGetValidOAuthAccessTokenRefreshes(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = r.ParseForm()
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer ts.Close()

	c, store := newTestCredentials(t, ts.URL)
	putCredential(t, store, "old-access", time.Now().Add(10*time.Second))

	tok, err := c.GetValidOAuthAccessToken(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok)
	assert.EqualValues(t, 1, calls.Load())

	stored, err := store.Get(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.True(t, stored.ExpiresAt.After(time.Now().Add(50*time.Minute)))
}

func TestAuthorizeAndClient(t *testing.T) {
	c, store := newTestCredentials(t, "http://127.0.0.1:1/token")
	putCredential(t, store, "fresh-access", time.Now().Add(time.Hour))

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer api.Close()

	req := httptest.NewRequest(http.MethodGet, api.URL, nil)
	require.NoError(t, c.Authorize(req, "user-1", "gmail"))
	assert.Equal(t, "Bearer fresh-access", req.Header.Get("Authorization"))

	resp, err := c.Client(context.Background(), "user-1", "gmail").Get(api.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh-access", string(body))

	_, err = c.Client(context.Background(), "nobody", "gmail").Get(api.URL)
	assert.ErrorIs(t, err, oclient.ErrNotConnected)
}

func TestHandlerRequiresSession(t *testing.T) {
	c, _ := newTestCredentials(t, "http://127.0.0.1:1/token")
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/oauth/gmail/initiate", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
