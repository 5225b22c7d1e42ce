package service

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/beaconlabs/beacon/internal/events"
	"github.com/beaconlabs/beacon/internal/ratelimit"
)

// collectPayload is the ingestion request body. The tenant binding comes
// from the authenticated credential, never from the payload.
type collectPayload struct {
	Event     string          `json:"event"`
	URL       string          `json:"url"`
	Referrer  string          `json:"referrer"`
	Device    string          `json:"device"`
	IPAddress string          `json:"ip_address"`
	Timestamp string          `json:"timestamp"`
	Metadata  events.Metadata `json:"metadata"`
	UserID    string          `json:"user_id"`
}

// Accepted timestamp layouts; the second covers ISO strings without a zone,
// which are taken as UTC.
var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

func (s *Service) handleCollect(w http.ResponseWriter, r *http.Request) {
	auth, err := s.authenticateAPIKey(r)
	if err != nil {
		switch err {
		case ErrInvalidKey:
			s.metrics.IngestTotal.WithLabelValues("invalid_key").Inc()
			writeDetail(w, http.StatusUnauthorized, "Invalid API key.")
		case ErrKeyInactive:
			s.metrics.IngestTotal.WithLabelValues("inactive_key").Inc()
			writeDetail(w, http.StatusUnauthorized, "API key inactive.")
		default:
			s.logger.Error().Err(err).Msg("api key lookup failed")
			writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		}
		return
	}
	if !auth.Authenticated() {
		// No credential at all is a permission failure, not an
		// authentication failure.
		s.metrics.IngestTotal.WithLabelValues("no_key").Inc()
		writeDetail(w, http.StatusForbidden, "API key required.")
		return
	}

	allowed, err := s.limiter.Allow(r.Context(), ratelimit.ScopeCollect, r.Header.Get(s.config.APIKeyHeader))
	if err != nil {
		// Limiter trouble must not take ingestion down with it.
		s.logger.Error().Err(err).Msg("rate limiter unavailable, allowing request")
		allowed = true
	}
	if !allowed {
		s.metrics.RateLimitedTotal.WithLabelValues(ratelimit.ScopeCollect).Inc()
		writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded.")
		return
	}

	var payload collectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.metrics.IngestTotal.WithLabelValues("validation_error").Inc()
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	ev, detail := s.buildEvent(&payload, r)
	if detail != "" {
		s.metrics.IngestTotal.WithLabelValues("validation_error").Inc()
		writeDetail(w, http.StatusBadRequest, detail)
		return
	}
	ev.AppID = auth.App.ID

	if err := s.events.Insert(r.Context(), ev); err != nil {
		s.logger.Error().Err(err).Str("app_id", auth.App.ID).Msg("failed to store event")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	s.metrics.IngestTotal.WithLabelValues("accepted").Inc()
	writeDetail(w, http.StatusCreated, "Event accepted.")
}

// buildEvent validates and normalizes the payload. It returns a non-empty
// detail string on the first validation failure; nothing is persisted in
// that case.
func (s *Service) buildEvent(p *collectPayload, r *http.Request) (*events.Event, string) {
	ts := s.now()
	if p.Timestamp != "" {
		parsed, ok := parseTimestamp(p.Timestamp)
		if !ok {
			return nil, "Invalid timestamp."
		}
		ts = parsed
	}

	if p.Event == "" {
		return nil, "Event name is required."
	}
	if len(p.Event) > events.MaxEventNameLen {
		return nil, "Event name is too long."
	}
	if detail := checkURLField("url", p.URL); detail != "" {
		return nil, detail
	}
	if detail := checkURLField("referrer", p.Referrer); detail != "" {
		return nil, detail
	}
	if len(p.Device) > events.MaxDeviceLen {
		return nil, "Device label is too long."
	}
	if len(p.UserID) > events.MaxUserIDLen {
		return nil, "User identifier is too long."
	}

	ip := p.IPAddress
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}

	return &events.Event{
		Event:     p.Event,
		URL:       p.URL,
		Referrer:  p.Referrer,
		Device:    p.Device,
		IPAddress: ip,
		Timestamp: ts,
		Metadata:  p.Metadata,
		UserID:    p.UserID,
	}, ""
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func checkURLField(name, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > events.MaxURLLen {
		return "Field " + name + " is too long."
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "Field " + name + " must be a valid URL."
	}
	return ""
}
