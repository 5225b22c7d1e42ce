package apps

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// apiKeyBytes is the number of random bytes behind each API key.
// Hex-encoded this yields a 48-character opaque token.
const apiKeyBytes = 24

var (
	// ErrNotFound is returned for apps that do not exist as well as apps
	// owned by someone else, so callers cannot probe for foreign app IDs.
	ErrNotFound = errors.New("client app not found")

	// ErrKeyConflict is returned when a freshly generated API key collides
	// with an existing one. With 192 bits of randomness this never happens
	// in practice; stores still enforce uniqueness and surface it.
	ErrKeyConflict = errors.New("api key conflict")
)

// ClientApp is a registered tenant credential. The API key is generated
// server-side on creation and regeneration; it is never client-supplied.
type ClientApp struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"-"`
	Name      string     `json:"name"`
	APIKey    string     `json:"api_key"`
	IsRevoked bool       `json:"is_revoked"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsActive reports whether the app's key is usable for ingestion:
// not revoked and not past its expiry (if one is set).
func (a *ClientApp) IsActive(now time.Time) bool {
	if a.IsRevoked {
		return false
	}
	if a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
		return false
	}
	return true
}

// NewAPIKey generates a fresh high-entropy API key.
func NewAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Store persists ClientApps. Revoke and Regenerate take the owner ID and
// apply the ownership check inside the store so that "not yours" and
// "does not exist" are indistinguishable to the caller.
type Store interface {
	Create(ctx context.Context, ownerID, name string, expiresAt *time.Time) (*ClientApp, error)
	GetByKey(ctx context.Context, apiKey string) (*ClientApp, error)
	ListActive(ctx context.Context, ownerID string) ([]*ClientApp, error)
	Revoke(ctx context.Context, ownerID, appID string) error
	Regenerate(ctx context.Context, ownerID, appID string) (*ClientApp, error)
}
