// ABOUTME: Tests for the Entra ID sign-in flow
// ABOUTME: Uses a fake token endpoint; no real Azure calls

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return raw
}

// newTestAuthenticator points the token endpoint at a fake server.
func newTestAuthenticator(t *testing.T, tokenHandler http.HandlerFunc) *Authenticator {
	t.Helper()
	srv := httptest.NewServer(tokenHandler)
	t.Cleanup(srv.Close)

	a := New("tenant-1", "client-1", "secret-1", "http://localhost/auth/callback", discardLogger())
	t.Cleanup(a.Close)
	a.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/authorize",
		TokenURL: srv.URL + "/token",
	}
	return a
}

func tokenResponse(t *testing.T, idTok string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idTok,
		})
	}
}

func TestBeginLoginURL(t *testing.T) {
	a := New("tenant-1", "client-1", "secret-1", "http://localhost/auth/callback", discardLogger())
	defer a.Close()

	loginURL, err := a.BeginLogin()
	require.NoError(t, err)

	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	assert.Contains(t, u.Host, "login.microsoftonline.com")
	assert.Contains(t, u.Path, "tenant-1")

	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "http://localhost/auth/callback", q.Get("redirect_uri"))
	assert.NotEmpty(t, q.Get("state"))
	assert.True(t, strings.Contains(q.Get("scope"), PowerPlatformScope))
}

func TestCompleteExtractsIdentity(t *testing.T) {
	idTok := idToken(t, jwt.MapClaims{
		"name":               "Ada Lovelace",
		"preferred_username": "ada@example.com",
		"exp":                time.Now().Add(time.Hour).Unix(),
	})
	a := newTestAuthenticator(t, tokenResponse(t, idTok))

	loginURL, err := a.BeginLogin()
	require.NoError(t, err)
	state := mustState(t, loginURL)

	id, err := a.Complete(context.Background(), state, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", id.Name)
	assert.Equal(t, "ada@example.com", id.Username)
	assert.Equal(t, "access-123", id.AccessToken)
	assert.False(t, id.Expiry.IsZero())
}

func TestCompleteRejectsUnknownState(t *testing.T) {
	a := newTestAuthenticator(t, tokenResponse(t, ""))

	_, err := a.Complete(context.Background(), "never-issued", "code-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateIsSingleUse(t *testing.T) {
	idTok := idToken(t, jwt.MapClaims{"name": "Ada"})
	a := newTestAuthenticator(t, tokenResponse(t, idTok))

	loginURL, err := a.BeginLogin()
	require.NoError(t, err)
	state := mustState(t, loginURL)

	_, err = a.Complete(context.Background(), state, "code-1")
	require.NoError(t, err)

	_, err = a.Complete(context.Background(), state, "code-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNameFallsBackToUsername(t *testing.T) {
	idTok := idToken(t, jwt.MapClaims{"preferred_username": "ada@example.com"})
	a := newTestAuthenticator(t, tokenResponse(t, idTok))

	loginURL, err := a.BeginLogin()
	require.NoError(t, err)

	id, err := a.Complete(context.Background(), mustState(t, loginURL), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", id.Name)
}

func TestExchangeFailure(t *testing.T) {
	a := newTestAuthenticator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	})

	loginURL, err := a.BeginLogin()
	require.NoError(t, err)

	_, err = a.Complete(context.Background(), mustState(t, loginURL), "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchanging authorization code")
}

func mustState(t *testing.T, loginURL string) string {
	t.Helper()
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}
