package apps

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryStore implements Store using in-memory maps. It backs tests and
// single-instance development setups.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*ClientApp
	byKey  map[string]string // api key -> app ID
	logger zerolog.Logger
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory app store.
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*ClientApp),
		byKey:  make(map[string]string),
		logger: logger,
		now:    time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, ownerID, name string, expiresAt *time.Time) (*ClientApp, error) {
	key, err := NewAPIKey()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byKey[key]; taken {
		// One retry mirrors the persistent stores' conflict handling.
		if key, err = NewAPIKey(); err != nil {
			return nil, err
		}
		if _, taken := m.byKey[key]; taken {
			return nil, ErrKeyConflict
		}
	}

	now := m.now().UTC()
	app := &ClientApp{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		APIKey:    key,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byID[app.ID] = app
	m.byKey[key] = app.ID

	m.logger.Debug().Str("app_id", app.ID).Str("owner_id", ownerID).Msg("registered client app")
	return cloneApp(app), nil
}

func (m *MemoryStore) GetByKey(ctx context.Context, apiKey string) (*ClientApp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[apiKey]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneApp(m.byID[id]), nil
}

func (m *MemoryStore) ListActive(ctx context.Context, ownerID string) ([]*ClientApp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ClientApp, 0)
	for _, app := range m.byID {
		if app.OwnerID == ownerID && !app.IsRevoked {
			out = append(out, cloneApp(app))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Revoke(ctx context.Context, ownerID, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.byID[appID]
	if !ok || app.OwnerID != ownerID {
		return ErrNotFound
	}
	app.IsRevoked = true
	app.UpdatedAt = m.now().UTC()

	m.logger.Debug().Str("app_id", appID).Msg("revoked client app")
	return nil
}

func (m *MemoryStore) Regenerate(ctx context.Context, ownerID, appID string) (*ClientApp, error) {
	key, err := NewAPIKey()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.byID[appID]
	if !ok || app.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if _, taken := m.byKey[key]; taken {
		return nil, ErrKeyConflict
	}

	delete(m.byKey, app.APIKey)
	app.APIKey = key
	app.UpdatedAt = m.now().UTC()
	m.byKey[key] = app.ID

	m.logger.Debug().Str("app_id", appID).Msg("regenerated api key")
	return cloneApp(app), nil
}

// AppOwner resolves an app ID to its owner. The in-memory event store uses
// this to apply the owner join that Postgres does in SQL.
func (m *MemoryStore) AppOwner(ctx context.Context, appID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.byID[appID]
	if !ok {
		return "", ErrNotFound
	}
	return app.OwnerID, nil
}

func cloneApp(app *ClientApp) *ClientApp {
	cp := *app
	if app.ExpiresAt != nil {
		t := *app.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}
