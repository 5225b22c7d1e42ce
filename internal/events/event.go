package events

import (
	"context"
	"time"
)

// Field length limits shared by the HTTP layer and the schema.
const (
	MaxEventNameLen = 255
	MaxURLLen       = 1000
	MaxDeviceLen    = 50
	MaxUserIDLen    = 255
)

// Event is one ingested analytics fact. Events are written once by the
// ingestion pipeline and never mutated; they disappear only when their
// owning app is deleted (cascade at the schema level).
type Event struct {
	ID        int64
	AppID     string
	Event     string
	URL       string
	Referrer  string
	Device    string
	IPAddress string
	Timestamp time.Time
	Metadata  Metadata
	UserID    string
	CreatedAt time.Time
}

// SummaryFilter scopes an event-summary query. OwnerID is mandatory and is
// always applied through the app ownership join; AppID only narrows further
// and is never trusted on its own.
type SummaryFilter struct {
	OwnerID   string
	Event     string
	AppID     string
	StartDate *time.Time // inclusive, calendar date (UTC) of the event timestamp
	EndDate   *time.Time // inclusive
}

// Summary is the aggregate for one event name.
type Summary struct {
	Event       string `json:"event"`
	Count       int64  `json:"count"`
	UniqueUsers int64  `json:"uniqueUsers"`
	// DeviceData maps device label to event count. Events with an empty
	// device land in the "unknown" bucket, indistinguishable from events
	// that explicitly reported "unknown".
	DeviceData map[string]int64 `json:"deviceData"`
}

// UserStats aggregates one user's events under a single owner. Latest is
// the most recent event by timestamp, nil when the user has none.
type UserStats struct {
	TotalEvents int64
	Latest      *Event
}

// Store persists and aggregates events. All read queries are scoped to an
// owner via the app join; no query ever returns another owner's rows.
type Store interface {
	Insert(ctx context.Context, ev *Event) error
	Summary(ctx context.Context, f SummaryFilter) (*Summary, error)
	UserStats(ctx context.Context, ownerID, userID string) (*UserStats, error)
}
