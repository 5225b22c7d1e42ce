package apps

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(zerolog.Nop())
}

func TestNewAPIKey(t *testing.T) {
	key1, err := NewAPIKey()
	require.NoError(t, err)
	key2, err := NewAPIKey()
	require.NoError(t, err)

	assert.Len(t, key1, 48)
	assert.NotEqual(t, key1, key2)
}

func TestIsActive(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		app  ClientApp
		want bool
	}{
		{"fresh app", ClientApp{}, true},
		{"revoked", ClientApp{IsRevoked: true}, false},
		{"expired", ClientApp{ExpiresAt: &past}, false},
		{"not yet expired", ClientApp{ExpiresAt: &future}, true},
		{"revoked and unexpired", ClientApp{IsRevoked: true, ExpiresAt: &future}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.app.IsActive(now))
		})
	}
}

func TestMemoryStoreCreateAndGetByKey(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	app, err := store.Create(ctx, "owner-1", "web-frontend", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, app.ID)
	assert.Len(t, app.APIKey, 48)
	assert.Equal(t, "owner-1", app.OwnerID)

	got, err := store.GetByKey(ctx, app.APIKey)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	_, err = store.GetByKey(ctx, "no-such-key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListActive(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	first, err := store.Create(ctx, "owner-1", "first", nil)
	require.NoError(t, err)
	second, err := store.Create(ctx, "owner-1", "second", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "owner-2", "other", nil)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, "owner-1", second.ID))

	listed, err := store.ListActive(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, first.ID, listed[0].ID)
}

func TestMemoryStoreRevokeForeignApp(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	app, err := store.Create(ctx, "owner-1", "mine", nil)
	require.NoError(t, err)

	err = store.Revoke(ctx, "owner-2", app.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The app must be untouched by the failed revoke.
	got, err := store.GetByKey(ctx, app.APIKey)
	require.NoError(t, err)
	assert.False(t, got.IsRevoked)
}

func TestMemoryStoreRegenerate(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	app, err := store.Create(ctx, "owner-1", "mine", nil)
	require.NoError(t, err)
	oldKey := app.APIKey

	regenerated, err := store.Regenerate(ctx, "owner-1", app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, regenerated.ID)
	assert.NotEqual(t, oldKey, regenerated.APIKey)

	// The old key no longer resolves; the new one does.
	_, err = store.GetByKey(ctx, oldKey)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetByKey(ctx, regenerated.APIKey)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
}

func TestMemoryStoreRegenerateForeignApp(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	app, err := store.Create(ctx, "owner-1", "mine", nil)
	require.NoError(t, err)

	_, err = store.Regenerate(ctx, "owner-2", app.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Original key must still work.
	_, err = store.GetByKey(ctx, app.APIKey)
	require.NoError(t, err)
}

func TestMemoryStoreAppOwner(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	app, err := store.Create(ctx, "owner-1", "mine", nil)
	require.NoError(t, err)

	owner, err := store.AppOwner(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", owner)

	_, err = store.AppOwner(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
