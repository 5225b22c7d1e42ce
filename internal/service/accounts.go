package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/beaconlabs/beacon/internal/apps"
)

const (
	minExpiryDays = 1
	maxExpiryDays = 365
	maxNameLen    = 255
)

type registerRequest struct {
	Name          string `json:"name"`
	ExpiresInDays *int   `json:"expires_in_days"`
}

type appIDRequest struct {
	AppID string `json:"app_id"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.authenticateOwner(r)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided or are invalid.")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if req.Name == "" || len(req.Name) > maxNameLen {
		writeDetail(w, http.StatusBadRequest, "Name is required and must be at most 255 characters.")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays != nil {
		days := *req.ExpiresInDays
		if days < minExpiryDays || days > maxExpiryDays {
			writeDetail(w, http.StatusBadRequest, "expires_in_days must be between 1 and 365.")
			return
		}
		t := s.now().AddDate(0, 0, days)
		expiresAt = &t
	}

	app, err := s.apps.Create(r.Context(), ownerID, req.Name, expiresAt)
	if err != nil {
		s.logger.Error().Err(err).Str("owner_id", ownerID).Msg("failed to register client app")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	s.metrics.AppsRegistered.Inc()
	s.logger.Info().Str("app_id", app.ID).Str("owner_id", ownerID).Msg("client app registered")
	writeJSON(w, http.StatusCreated, app)
}

func (s *Service) handleListKeys(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.authenticateOwner(r)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided or are invalid.")
		return
	}

	list, err := s.apps.ListActive(r.Context(), ownerID)
	if err != nil {
		s.logger.Error().Err(err).Str("owner_id", ownerID).Msg("failed to list client apps")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.authenticateOwner(r)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided or are invalid.")
		return
	}

	appID, ok := s.decodeAppID(w, r)
	if !ok {
		return
	}

	if err := s.apps.Revoke(r.Context(), ownerID, appID); err != nil {
		if errors.Is(err, apps.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "App not found.")
			return
		}
		s.logger.Error().Err(err).Str("app_id", appID).Msg("failed to revoke client app")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	s.logger.Info().Str("app_id", appID).Str("owner_id", ownerID).Msg("api key revoked")
	writeDetail(w, http.StatusOK, "API key revoked.")
}

func (s *Service) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.authenticateOwner(r)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided or are invalid.")
		return
	}

	appID, ok := s.decodeAppID(w, r)
	if !ok {
		return
	}

	app, err := s.apps.Regenerate(r.Context(), ownerID, appID)
	if err != nil {
		if errors.Is(err, apps.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "App not found.")
			return
		}
		s.logger.Error().Err(err).Str("app_id", appID).Msg("failed to regenerate api key")
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	s.logger.Info().Str("app_id", appID).Str("owner_id", ownerID).Msg("api key regenerated")
	writeJSON(w, http.StatusOK, app)
}

// decodeAppID reads and validates the {app_id} body shared by revoke and
// regenerate. Malformed IDs are a validation error, not a lookup miss.
func (s *Service) decodeAppID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req appIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return "", false
	}
	if _, err := uuid.Parse(req.AppID); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid app_id.")
		return "", false
	}
	return req.AppID, true
}
