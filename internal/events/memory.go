package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OwnerResolver maps an app ID to its owner. The in-memory app store
// implements it; the Postgres event store does the join in SQL instead.
type OwnerResolver interface {
	AppOwner(ctx context.Context, appID string) (string, error)
}

// MemoryStore implements Store in memory for tests and development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	nextID int64
	owners OwnerResolver
	logger zerolog.Logger
}

// NewMemoryStore creates an empty in-memory event store. The resolver
// supplies the app -> owner mapping used to scope every read query.
func NewMemoryStore(owners OwnerResolver, logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{owners: owners, logger: logger, nextID: 1}
}

func (m *MemoryStore) Insert(ctx context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *ev
	cp.ID = m.nextID
	cp.CreatedAt = time.Now().UTC()
	m.nextID++
	m.events = append(m.events, &cp)
	ev.ID = cp.ID

	m.logger.Debug().Str("app_id", ev.AppID).Str("event", ev.Event).Msg("stored event")
	return nil
}

func (m *MemoryStore) Summary(ctx context.Context, f SummaryFilter) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := &Summary{Event: f.Event, DeviceData: make(map[string]int64)}
	users := make(map[string]struct{})

	for _, ev := range m.events {
		if ev.Event != f.Event {
			continue
		}
		if f.AppID != "" && ev.AppID != f.AppID {
			continue
		}
		owner, err := m.owners.AppOwner(ctx, ev.AppID)
		if err != nil || owner != f.OwnerID {
			continue
		}
		day := ev.Timestamp.UTC().Truncate(24 * time.Hour)
		if f.StartDate != nil && day.Before(f.StartDate.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if f.EndDate != nil && day.After(f.EndDate.UTC().Truncate(24*time.Hour)) {
			continue
		}

		sum.Count++
		if ev.UserID != "" {
			users[ev.UserID] = struct{}{}
		}
		device := ev.Device
		if device == "" {
			device = "unknown"
		}
		sum.DeviceData[device]++
	}

	sum.UniqueUsers = int64(len(users))
	return sum, nil
}

func (m *MemoryStore) UserStats(ctx context.Context, ownerID, userID string) (*UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &UserStats{}
	for _, ev := range m.events {
		if ev.UserID != userID {
			continue
		}
		owner, err := m.owners.AppOwner(ctx, ev.AppID)
		if err != nil || owner != ownerID {
			continue
		}
		stats.TotalEvents++
		// Later inserts win timestamp ties, matching the Postgres
		// ORDER BY timestamp DESC, id DESC.
		if stats.Latest == nil || !ev.Timestamp.Before(stats.Latest.Timestamp) {
			cp := *ev
			stats.Latest = &cp
		}
	}
	return stats, nil
}
