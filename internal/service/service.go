package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/beaconlabs/beacon/internal/apps"
	"github.com/beaconlabs/beacon/internal/cache"
	"github.com/beaconlabs/beacon/internal/events"
	"github.com/beaconlabs/beacon/internal/ratelimit"
)

// Config holds the service configuration.
type Config struct {
	// APIKeyHeader is the header carrying the ingestion credential.
	APIKeyHeader string
	// JWTSecret signs and verifies owner session tokens.
	JWTSecret []byte
	// CacheTTL bounds the staleness of cached aggregation results.
	CacheTTL time.Duration
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

// DefaultConfig returns the config used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		APIKeyHeader: "X-API-KEY",
		CacheTTL:     60 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// Service is the analytics API: credential management, event ingestion and
// owner-scoped aggregation queries. Handlers are stateless; shared state
// lives behind the Cache and Limiter interfaces.
type Service struct {
	config  Config
	logger  zerolog.Logger
	apps    apps.Store
	events  events.Store
	cache   cache.Cache
	limiter ratelimit.Limiter
	metrics *Metrics
	now     func() time.Time

	// readyChecks are pinged by /readyz (postgres, redis).
	readyChecks []func(context.Context) error
}

// New creates the service. reg receives the service metrics; pass
// prometheus.DefaultRegisterer in production.
func New(cfg Config, appStore apps.Store, eventStore events.Store, c cache.Cache,
	limiter ratelimit.Limiter, reg prometheus.Registerer, logger zerolog.Logger) *Service {

	def := DefaultConfig()
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = def.APIKeyHeader
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	return &Service{
		config:  cfg,
		logger:  logger,
		apps:    appStore,
		events:  eventStore,
		cache:   c,
		limiter: limiter,
		metrics: newMetrics(reg),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddReadyCheck registers a dependency ping for /readyz.
func (s *Service) AddReadyCheck(check func(context.Context) error) {
	s.readyChecks = append(s.readyChecks, check)
}

// Router builds the HTTP routes.
func (s *Service) Router() http.Handler {
	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.config.MaxBodyBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
			}
			s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	router.HandleFunc("/readyz", s.handleReadyz).Methods("GET")

	// Account endpoints (owner session auth).
	router.HandleFunc("/register", s.handleRegister).Methods("POST")
	router.HandleFunc("/api-key", s.handleListKeys).Methods("GET")
	router.HandleFunc("/revoke", s.handleRevoke).Methods("POST")
	router.HandleFunc("/regenerate", s.handleRegenerate).Methods("POST")

	// Ingestion endpoint (API key auth).
	router.HandleFunc("/collect", s.handleCollect).Methods("POST")

	// Aggregation endpoints (owner session auth).
	router.HandleFunc("/event-summary", s.handleEventSummary).Methods("GET")
	router.HandleFunc("/user-stats", s.handleUserStats).Methods("GET")

	return router
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, check := range s.readyChecks {
		if err := check(ctx); err != nil {
			s.logger.Error().Err(err).Msg("readiness check failed")
			writeDetail(w, http.StatusServiceUnavailable, "Dependency not reachable.")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeDetail writes the error contract shared by all failure responses.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
