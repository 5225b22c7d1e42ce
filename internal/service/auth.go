package service

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beaconlabs/beacon/internal/apps"
)

var (
	// ErrInvalidKey means the header carried a key no app owns.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrKeyInactive means the key exists but is revoked or expired.
	ErrKeyInactive = errors.New("api key inactive")
)

// AuthResult is the outcome of the API-key gate. A zero value means no
// credential was presented; the permission check downstream turns that
// into a distinct status from a rejected key.
type AuthResult struct {
	App *apps.ClientApp
}

// Authenticated reports whether a tenant is bound to the request.
func (a AuthResult) Authenticated() bool { return a.App != nil }

// authenticateAPIKey resolves the API key header to a tenant. An absent
// header yields an unauthenticated result with no error; a present but
// unknown or inactive key is an authentication failure.
func (s *Service) authenticateAPIKey(r *http.Request) (AuthResult, error) {
	key := r.Header.Get(s.config.APIKeyHeader)
	if key == "" {
		return AuthResult{}, nil
	}

	app, err := s.apps.GetByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, apps.ErrNotFound) {
			return AuthResult{}, ErrInvalidKey
		}
		return AuthResult{}, err
	}
	if !app.IsActive(s.now()) {
		return AuthResult{}, ErrKeyInactive
	}
	return AuthResult{App: app}, nil
}

// authenticateOwner validates the bearer token on management and query
// endpoints and returns the owner identity. The identity provider that
// mints these tokens is external; the service only verifies them.
func (s *Service) authenticateOwner(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("missing bearer token")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.config.JWTSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// MintOwnerToken issues a session token for the given owner. Exposed for
// tests and local tooling; production tokens come from the identity
// provider sharing the same secret.
func MintOwnerToken(secret []byte, ownerID string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// limiterIdentity is the analytics-scope rate limit key: the resolved
// owner, falling back to the caller's network address.
func limiterIdentity(ownerID string, r *http.Request) string {
	if ownerID != "" {
		return ownerID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
