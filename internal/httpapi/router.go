package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/auth"
	"github.com/jackchouchani/inventoryApp-sub001/internal/notify"
	"github.com/jackchouchani/inventoryApp-sub001/internal/service/offlineservice"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// Online reports remote reachability
type Online interface {
	IsOnline() bool
}

// Server holds dependencies for HTTP handlers
type Server struct {
	Svc             *offlineservice.Service
	Hub             *notify.Hub // nil disables /v1/stream
	Net             Online      // nil reports online
	RateLimitConfig RateLimitInfo
	// AuthEnabled guards every /v1 route except /v1/info with the JWT middleware
	AuthEnabled bool
}

func (s *Server) online() bool {
	return s.Net == nil || s.Net.IsOnline()
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// decodeJSON reads a request body, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseLimit parses a limit query param with default and max
func parseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Routes creates the HTTP router
func (s *Server) Routes(jwt auth.JWTCfg) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/v1/info", s.Info)

	r.Group(func(r chi.Router) {
		if s.AuthEnabled {
			r.Use(auth.Middleware(jwt))
		}
		r.Use(RateLimitMiddleware(s.RateLimitConfig))

		r.Post("/v1/mutations", s.EnqueueMutation)

		r.Get("/v1/events", s.ListEvents)
		r.Post("/v1/events/retry", s.RetryFailed)
		r.Post("/v1/events/{id}/retry", s.RetryFailed)

		r.Get("/v1/conflicts", s.ListConflicts)
		r.Get("/v1/conflicts/{id}", s.GetConflict)
		r.Post("/v1/conflicts/{id}/resolve", s.ResolveConflict)

		r.Get("/v1/entities/{entity}/{id}/status", s.EntityStatus)

		r.Post("/v1/sync", s.SyncNow)

		r.Get("/v1/queue/export", s.ExportQueue)
		r.Post("/v1/queue/import", s.ImportQueue)

		if s.Hub != nil {
			r.Get("/v1/stream", s.Stream)
		}
	})

	log.Info().Bool("auth", s.AuthEnabled).Msg("HTTP routes registered")
	return r
}
