package service

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/beaconlabs/beacon/internal/events"
	"github.com/beaconlabs/beacon/internal/ratelimit"
)

const dateLayout = "2006-01-02"

type userStatsResponse struct {
	UserID        string         `json:"userId"`
	TotalEvents   int64          `json:"totalEvents"`
	DeviceDetails map[string]any `json:"deviceDetails"`
	IPAddress     *string        `json:"ipAddress"`
}

// checkAnalyticsAccess runs the owner auth and analytics-scope rate limit
// shared by both query endpoints. It writes the error response itself and
// returns ok=false when the request must not proceed.
func (s *Service) checkAnalyticsAccess(w http.ResponseWriter, r *http.Request) (ownerID string, ok bool) {
	ownerID, err := s.authenticateOwner(r)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided or are invalid.")
		return "", false
	}

	allowed, err := s.limiter.Allow(r.Context(), ratelimit.ScopeAnalytics, limiterIdentity(ownerID, r))
	if err != nil {
		s.logger.Error().Err(err).Msg("rate limiter unavailable, allowing request")
		allowed = true
	}
	if !allowed {
		s.metrics.RateLimitedTotal.WithLabelValues(ratelimit.ScopeAnalytics).Inc()
		writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded.")
		return "", false
	}
	return ownerID, true
}

func (s *Service) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.checkAnalyticsAccess(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	event := q.Get("event")
	if event == "" {
		writeDetail(w, http.StatusBadRequest, "Event parameter is required.")
		return
	}

	filter := events.SummaryFilter{OwnerID: ownerID, Event: event}

	if raw := q.Get("startDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid startDate.")
			return
		}
		filter.StartDate = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid endDate.")
			return
		}
		filter.EndDate = &t
	}
	if raw := q.Get("app_id"); raw != "" {
		if _, err := uuid.Parse(raw); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid app_id.")
			return
		}
		// The app_id only narrows the owner-scoped filter; an app owned by
		// someone else simply matches nothing.
		filter.AppID = raw
	}

	// url.Values encoding keeps free-form values from blurring the field
	// boundaries of the key.
	cacheKey := "event-summary?" + url.Values{
		"owner":     {ownerID},
		"event":     {event},
		"startDate": {q.Get("startDate")},
		"endDate":   {q.Get("endDate")},
		"app_id":    {q.Get("app_id")},
	}.Encode()
	if body, hit := s.cacheGet(r, cacheKey); hit {
		s.metrics.CacheRequests.WithLabelValues("event-summary", "hit").Inc()
		writeRaw(w, http.StatusOK, body)
		return
	}
	s.metrics.CacheRequests.WithLabelValues("event-summary", "miss").Inc()

	start := time.Now()
	summary, err := s.events.Summary(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Str("owner_id", ownerID).Msg("summary query failed")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	s.metrics.QueryDuration.WithLabelValues("event-summary").Observe(time.Since(start).Seconds())

	s.respondCached(w, r, cacheKey, summary)
}

func (s *Service) handleUserStats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.checkAnalyticsAccess(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeDetail(w, http.StatusBadRequest, "userId parameter is required.")
		return
	}

	cacheKey := "user-stats?" + url.Values{
		"owner":  {ownerID},
		"userId": {userID},
	}.Encode()
	if body, hit := s.cacheGet(r, cacheKey); hit {
		s.metrics.CacheRequests.WithLabelValues("user-stats", "hit").Inc()
		writeRaw(w, http.StatusOK, body)
		return
	}
	s.metrics.CacheRequests.WithLabelValues("user-stats", "miss").Inc()

	start := time.Now()
	stats, err := s.events.UserStats(r.Context(), ownerID, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("owner_id", ownerID).Msg("user stats query failed")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	s.metrics.QueryDuration.WithLabelValues("user-stats").Observe(time.Since(start).Seconds())

	resp := userStatsResponse{
		UserID:        userID,
		TotalEvents:   stats.TotalEvents,
		DeviceDetails: map[string]any{},
	}
	if latest := stats.Latest; latest != nil {
		resp.DeviceDetails = map[string]any{
			"browser": latest.Metadata["browser"],
			"os":      latest.Metadata["os"],
		}
		if latest.IPAddress != "" {
			ip := latest.IPAddress
			resp.IPAddress = &ip
		}
	}

	s.respondCached(w, r, cacheKey, resp)
}

// cacheGet looks up a cached response body. Cache failures degrade to a
// miss.
func (s *Service) cacheGet(r *http.Request, key string) ([]byte, bool) {
	body, hit, err := s.cache.Get(r.Context(), key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("cache get failed")
		return nil, false
	}
	return body, hit
}

// respondCached marshals v once, stores the exact bytes for the TTL and
// writes those same bytes out, so a later hit replays the response
// byte for byte.
func (s *Service) respondCached(w http.ResponseWriter, r *http.Request, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal response")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	if err := s.cache.Set(r.Context(), key, body, s.config.CacheTTL); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("cache set failed")
	}
	writeRaw(w, http.StatusOK, body)
}
