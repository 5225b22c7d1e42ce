package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/beaconlabs/beacon/internal/events"
)

// EventStore implements events.Store on Postgres. Every read joins
// client_apps so results are scoped to the owner, never to a
// client-supplied app reference alone.
type EventStore struct {
	db     *DB
	logger zerolog.Logger
}

// NewEventStore creates a Postgres-backed event store.
func NewEventStore(db *DB, logger zerolog.Logger) *EventStore {
	return &EventStore{db: db, logger: logger}
}

func (s *EventStore) Insert(ctx context.Context, ev *events.Event) error {
	metadata := ev.Metadata
	if metadata == nil {
		metadata = events.Metadata{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var ip *string
	if ev.IPAddress != "" {
		ip = &ev.IPAddress
	}

	err = s.db.Pool.QueryRow(ctx, `
INSERT INTO events (app_id, event, url, referrer, device, ip_address, ts, metadata, user_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`,
		ev.AppID, ev.Event, ev.URL, ev.Referrer, ev.Device, ip,
		ev.Timestamp, raw, ev.UserID).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	s.logger.Debug().Str("app_id", ev.AppID).Str("event", ev.Event).Msg("stored event")
	return nil
}

func (s *EventStore) Summary(ctx context.Context, f events.SummaryFilter) (*events.Summary, error) {
	cond := "a.owner_id = $1 AND e.event = $2"
	args := []any{f.OwnerID, f.Event}

	if f.AppID != "" {
		args = append(args, f.AppID)
		cond += fmt.Sprintf(" AND e.app_id = $%d", len(args))
	}
	if f.StartDate != nil {
		args = append(args, f.StartDate.UTC())
		cond += fmt.Sprintf(" AND (e.ts AT TIME ZONE 'UTC')::date >= ($%d AT TIME ZONE 'UTC')::date", len(args))
	}
	if f.EndDate != nil {
		args = append(args, f.EndDate.UTC())
		cond += fmt.Sprintf(" AND (e.ts AT TIME ZONE 'UTC')::date <= ($%d AT TIME ZONE 'UTC')::date", len(args))
	}

	sum := &events.Summary{Event: f.Event, DeviceData: make(map[string]int64)}

	row := s.db.Pool.QueryRow(ctx, `
SELECT COUNT(*)::bigint, COUNT(DISTINCT NULLIF(e.user_id, ''))::bigint
FROM events e
JOIN client_apps a ON a.id = e.app_id
WHERE `+cond, args...)
	if err := row.Scan(&sum.Count, &sum.UniqueUsers); err != nil {
		return nil, fmt.Errorf("scan summary totals: %w", err)
	}

	rows, err := s.db.Pool.Query(ctx, `
SELECT CASE WHEN e.device = '' THEN 'unknown' ELSE e.device END AS device, COUNT(*)::bigint
FROM events e
JOIN client_apps a ON a.id = e.app_id
WHERE `+cond+`
GROUP BY 1`, args...)
	if err != nil {
		return nil, fmt.Errorf("query device counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var device string
		var count int64
		if err := rows.Scan(&device, &count); err != nil {
			return nil, fmt.Errorf("scan device count: %w", err)
		}
		sum.DeviceData[device] = count
	}
	return sum, rows.Err()
}

func (s *EventStore) UserStats(ctx context.Context, ownerID, userID string) (*events.UserStats, error) {
	stats := &events.UserStats{}

	row := s.db.Pool.QueryRow(ctx, `
SELECT COUNT(*)::bigint
FROM events e
JOIN client_apps a ON a.id = e.app_id
WHERE a.owner_id = $1 AND e.user_id = $2`, ownerID, userID)
	if err := row.Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("scan user total: %w", err)
	}

	var (
		latest events.Event
		ip     *string
		raw    []byte
	)
	err := s.db.Pool.QueryRow(ctx, `
SELECT e.device, e.ip_address, e.metadata, e.ts
FROM events e
JOIN client_apps a ON a.id = e.app_id
WHERE a.owner_id = $1 AND e.user_id = $2
ORDER BY e.ts DESC, e.id DESC
LIMIT 1`, ownerID, userID).Scan(&latest.Device, &ip, &raw, &latest.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, nil
		}
		return nil, fmt.Errorf("query latest event: %w", err)
	}

	if ip != nil {
		latest.IPAddress = *ip
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &latest.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	latest.UserID = userID
	stats.Latest = &latest
	return stats, nil
}
