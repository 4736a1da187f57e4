// Package api provides the HTTP server for BlockRush gamification.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blockrush/blockrush/internal/app/cosmetic"
	"github.com/blockrush/blockrush/internal/app/engagement"
	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/health"
	"github.com/blockrush/blockrush/internal/logger"
)

// Services are the application services behind the routes.
type Services struct {
	Users        *engagement.UserService
	Streaks      *engagement.StreakService
	SeasonPass   *engagement.SeasonPassService
	GameEnd      *engagement.GameEndService
	Challenges   *engagement.ChallengeTracker
	Achievements *engagement.AchievementService
	Goals        *engagement.GoalService
	Cosmetics    *cosmetic.Service
}

// JobRunner runs a scheduled job on demand. *scheduler.Scheduler satisfies it.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// HealthReporter exposes the latest health checks. *health.Checker
// satisfies it.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// Server is the BlockRush HTTP API server.
type Server struct {
	svc            Services
	jobs           JobRunner
	health         HealthReporter
	metricsEnabled bool
	log            *logger.Logger
	now            func() time.Time
}

// NewServer creates a new API server.
func NewServer(svc Services, log *logger.Logger) *Server {
	return &Server{svc: svc, log: log.With("component", "api"), now: time.Now}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetJobRunner enables the admin job endpoint.
func (s *Server) SetJobRunner(j JobRunner) { s.jobs = j }

// SetHealth sets the checker reported by /health.
func (s *Server) SetHealth(h HealthReporter) { s.health = h }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Put("/timezone", s.handleSetTimezone)

			r.Get("/streak", s.handleStreak)
			r.Post("/streak/freeze", s.handleStreakFreeze)

			r.Get("/season-pass", s.handleSeasonPass)
			r.Post("/season-pass/rewards/{rewardID}/claim", s.handleClaimReward)

			r.Post("/games/{sessionID}/complete", s.handleGameComplete)

			r.Get("/challenges", s.handleChallenges)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/goals", s.handleListGoals)
			r.Post("/goals", s.handleCreateGoal)

			r.Get("/cosmetics", s.handleCosmetics)
			r.Post("/cosmetics/{cosmeticID}/equip", s.handleEquipCosmetic)
		})

		r.Post("/admin/jobs/{job}/run", s.handleRunJob)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

func errorType(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status >= 500:
		return "internal_error"
	default:
		return "invalid_request"
	}
}

// writeServiceError maps a service error to its HTTP status. Unknown errors
// are logged and reported as 500 without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsNotFound(err), errors.Is(err, domain.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrSessionNotEnded),
		errors.Is(err, domain.ErrSessionOwnerMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, domain.ErrSessionAlreadyProcessed),
		errors.Is(err, domain.ErrCosmeticNotOwned):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(domain.ErrValidation, err)
	}
	return nil
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
