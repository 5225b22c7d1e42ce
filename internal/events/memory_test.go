package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticOwners is a fixed app -> owner mapping for tests.
type staticOwners map[string]string

func (o staticOwners) AppOwner(ctx context.Context, appID string) (string, error) {
	owner, ok := o[appID]
	if !ok {
		return "", context.Canceled
	}
	return owner, nil
}

func insertEvent(t *testing.T, store *MemoryStore, ev *Event) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), ev))
}

func TestMemoryStoreSummary(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1"}
	store := NewMemoryStore(owners, zerolog.Nop())
	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	insertEvent(t, store, &Event{AppID: "app-1", Event: "click", Device: "mobile", UserID: "u1", Timestamp: ts})

	sum, err := store.Summary(context.Background(), SummaryFilter{OwnerID: "owner-1", Event: "click"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Count)
	assert.Equal(t, int64(1), sum.UniqueUsers)
	assert.Equal(t, map[string]int64{"mobile": 1}, sum.DeviceData)
}

func TestMemoryStoreSummaryOwnerIsolation(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1", "app-2": "owner-2"}
	store := NewMemoryStore(owners, zerolog.Nop())
	ts := time.Now().UTC()

	insertEvent(t, store, &Event{AppID: "app-1", Event: "click", UserID: "u1", Timestamp: ts})
	insertEvent(t, store, &Event{AppID: "app-2", Event: "click", UserID: "u2", Timestamp: ts})

	sum, err := store.Summary(context.Background(), SummaryFilter{OwnerID: "owner-1", Event: "click"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Count)

	// Asking for another owner's app yields nothing, same as a missing app.
	sum, err = store.Summary(context.Background(), SummaryFilter{OwnerID: "owner-1", Event: "click", AppID: "app-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Count)
	assert.Empty(t, sum.DeviceData)
}

func TestMemoryStoreSummaryDateFilters(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1"}
	store := NewMemoryStore(owners, zerolog.Nop())

	insertEvent(t, store, &Event{AppID: "app-1", Event: "view", Timestamp: time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)})
	insertEvent(t, store, &Event{AppID: "app-1", Event: "view", Timestamp: time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)})
	insertEvent(t, store, &Event{AppID: "app-1", Event: "view", Timestamp: time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)})

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// Bounds are whole calendar days, inclusive on both ends.
	sum, err := store.Summary(context.Background(), SummaryFilter{
		OwnerID: "owner-1", Event: "view", StartDate: &start, EndDate: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Count)

	sum, err = store.Summary(context.Background(), SummaryFilter{
		OwnerID: "owner-1", Event: "view", StartDate: &start,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Count)
}

func TestMemoryStoreSummaryCoalescesEmptyDevice(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1"}
	store := NewMemoryStore(owners, zerolog.Nop())
	ts := time.Now().UTC()

	insertEvent(t, store, &Event{AppID: "app-1", Event: "click", Device: "", Timestamp: ts})
	insertEvent(t, store, &Event{AppID: "app-1", Event: "click", Device: "desktop", Timestamp: ts})

	sum, err := store.Summary(context.Background(), SummaryFilter{OwnerID: "owner-1", Event: "click"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"unknown": 1, "desktop": 1}, sum.DeviceData)
}

func TestMemoryStoreSummaryAnonymousUsers(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1"}
	store := NewMemoryStore(owners, zerolog.Nop())
	ts := time.Now().UTC()

	insertEvent(t, store, &Event{AppID: "app-1", Event: "click", Timestamp: ts})
	insertEvent(t, store, &Event{AppID: "app-1", Event: "click", UserID: "u1", Timestamp: ts})
	insertEvent(t, store, &Event{AppID: "app-1", Event: "click", UserID: "u1", Timestamp: ts})

	sum, err := store.Summary(context.Background(), SummaryFilter{OwnerID: "owner-1", Event: "click"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Count)
	assert.Equal(t, int64(1), sum.UniqueUsers)
}

func TestMemoryStoreUserStats(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1"}
	store := NewMemoryStore(owners, zerolog.Nop())

	insertEvent(t, store, &Event{
		AppID: "app-1", Event: "login", UserID: "u1", Device: "mobile",
		Timestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	insertEvent(t, store, &Event{
		AppID: "app-1", Event: "purchase", UserID: "u1", Device: "desktop",
		Timestamp: time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
	})

	stats, err := store.UserStats(context.Background(), "owner-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEvents)
	require.NotNil(t, stats.Latest)
	assert.Equal(t, "desktop", stats.Latest.Device)
}

func TestMemoryStoreUserStatsTieBreaksOnInsertOrder(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1"}
	store := NewMemoryStore(owners, zerolog.Nop())
	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	insertEvent(t, store, &Event{AppID: "app-1", Event: "first", UserID: "u1", Timestamp: ts})
	insertEvent(t, store, &Event{AppID: "app-1", Event: "second", UserID: "u1", Timestamp: ts})

	stats, err := store.UserStats(context.Background(), "owner-1", "u1")
	require.NoError(t, err)
	require.NotNil(t, stats.Latest)
	assert.Equal(t, "second", stats.Latest.Event)
}

func TestMemoryStoreUserStatsUnknownUser(t *testing.T) {
	owners := staticOwners{"app-1": "owner-1"}
	store := NewMemoryStore(owners, zerolog.Nop())

	stats, err := store.UserStats(context.Background(), "owner-1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEvents)
	assert.Nil(t, stats.Latest)
}
