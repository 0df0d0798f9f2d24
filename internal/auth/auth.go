// ABOUTME: Entra ID sign-in via the OAuth2 authorization code flow
// ABOUTME: State nonces are single-use; identity claims come from the token itself

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/2389/copilot-chat/internal/ttlcache"
)

// PowerPlatformScope grants delegated access to the Power Platform API,
// which Copilot Studio conversations are authorized against.
const PowerPlatformScope = "https://api.powerplatform.com/.default"

const stateTTL = 10 * time.Minute

// ErrInvalidState is returned when a callback carries an unknown or
// already-used state parameter.
var ErrInvalidState = errors.New("unknown or expired oauth state")

// Identity is the signed-in user as seen by the app.
type Identity struct {
	Name        string
	Username    string
	AccessToken string
	Expiry      time.Time
}

// Authenticator runs the authorization code flow against a tenant's
// Entra ID endpoints.
type Authenticator struct {
	oauth  oauth2.Config
	states *ttlcache.Cache
	logger *slog.Logger
}

// New creates an Authenticator for the given tenant and app registration.
// redirectURL must match a redirect URI configured on the app registration.
func New(tenantID, clientID, clientSecret, redirectURL string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     microsoft.AzureADEndpoint(tenantID),
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "profile", PowerPlatformScope},
		},
		states: ttlcache.New(stateTTL, 1000),
		logger: logger.With("component", "auth"),
	}
}

// BeginLogin returns the Entra ID authorization URL for a fresh sign-in
// attempt. The embedded state parameter is valid for one callback.
func (a *Authenticator) BeginLogin() (string, error) {
	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	a.states.Put(state)
	return a.oauth.AuthCodeURL(state), nil
}

// Complete validates the callback state, exchanges the code, and extracts
// the user's identity from the returned tokens.
func (a *Authenticator) Complete(ctx context.Context, state, code string) (*Identity, error) {
	if !a.states.TakeOnce(state) {
		return nil, ErrInvalidState
	}

	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	id := &Identity{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}

	// Prefer the ID token for display claims; fall back to the access token.
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		fillClaims(id, raw)
	}
	if id.Name == "" && id.Username == "" {
		fillClaims(id, tok.AccessToken)
	}
	if id.Name == "" {
		id.Name = id.Username
	}

	a.logger.Info("sign-in completed", "user", id.Username)
	return id, nil
}

// Close releases the state cache.
func (a *Authenticator) Close() {
	a.states.Close()
}

// fillClaims parses a JWT without verifying its signature and copies the
// display claims. Signature verification already happened upstream: the
// token came straight from the token endpoint over TLS.
func fillClaims(id *Identity, raw string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return
	}
	if name, ok := claims["name"].(string); ok && id.Name == "" {
		id.Name = name
	}
	if upn, ok := claims["preferred_username"].(string); ok && id.Username == "" {
		id.Username = upn
	}
	if id.Expiry.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			id.Expiry = exp.Time
		}
	}
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
