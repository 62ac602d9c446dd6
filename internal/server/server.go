package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/housemate/internal/auth"
	"github.com/dukerupert/housemate/internal/conflict"
	"github.com/dukerupert/housemate/internal/handler"
	"github.com/dukerupert/housemate/internal/household"
	"github.com/dukerupert/housemate/internal/metrics"
	"github.com/dukerupert/housemate/internal/middleware"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/repair"
	"github.com/dukerupert/housemate/internal/schedule"
	"github.com/dukerupert/housemate/internal/store"
	"github.com/dukerupert/housemate/internal/task"
)

type Server struct {
	db          *sql.DB
	store       *store.Store
	tokens      *auth.TokenManager
	metrics     *metrics.Metrics
	authH       *handler.AuthHandler
	householdH  *handler.HouseholdHandler
	guestH      *handler.WindowHandler
	quietH      *handler.WindowHandler
	taskH       *handler.TaskHandler
	repairJob   *repair.Job
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, tokens *auth.TokenManager, m *metrics.Metrics, logger *slog.Logger) *Server {
	st := store.New(db)

	registry := household.NewRegistry(st, m, logger.With("component", "household"))
	engine := conflict.NewEngine(m, logger.With("component", "conflict"))
	sched := schedule.NewScheduler(st, engine, logger.With("component", "schedule"))
	scheduleLogger := logger.With("component", "schedule_handler")

	return &Server{
		db:          db,
		store:       st,
		tokens:      tokens,
		metrics:     m,
		authH:       handler.NewAuthHandler(auth.NewService(st, tokens, logger.With("component", "auth")), logger.With("component", "auth_handler")),
		householdH:  handler.NewHouseholdHandler(registry, logger.With("component", "household_handler")),
		guestH:      handler.NewWindowHandler(model.KindGuest, sched, scheduleLogger),
		quietH:      handler.NewWindowHandler(model.KindQuietTime, sched, scheduleLogger),
		taskH:       handler.NewTaskHandler(task.NewService(st, logger.With("component", "task")), logger.With("component", "task_handler")),
		repairJob:   repair.NewJob(st, m, logger.With("component", "repair")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// RepairJob returns the consistency repair job for background scheduling.
func (s *Server) RepairJob() *repair.Job {
	return s.repairJob
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.Handle("POST /api/auth/register", s.rateLimited("register", s.authH.Register))
	outerMux.Handle("POST /api/auth/login", s.rateLimited("login", s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.store.Users)
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimited(name string, h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.AuthPolicy(name), middleware.RealIP)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Account
	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.HandleFunc("PATCH /api/me/avatar", s.authH.UpdateAvatar)

	// Households
	mux.HandleFunc("GET /api/households", s.householdH.List)
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.HandleFunc("POST /api/households/join", s.householdH.Join)
	mux.HandleFunc("GET /api/households/{id}", s.householdH.Details)
	mux.HandleFunc("POST /api/households/{id}/invite", s.householdH.Invite)
	mux.HandleFunc("POST /api/households/{id}/leave", s.householdH.Leave)
	mux.HandleFunc("POST /api/households/{id}/transfer-ownership", s.householdH.TransferOwnership)
	mux.HandleFunc("POST /api/households/{id}/kick/{memberId}", s.householdH.Kick)
	mux.HandleFunc("POST /api/households/{id}/disband", s.householdH.Disband)

	// Invites
	mux.HandleFunc("GET /api/invites", s.householdH.ListInvites)
	mux.HandleFunc("POST /api/invites/{id}/respond", s.householdH.RespondToInvite)

	// Guest announcements
	mux.HandleFunc("POST /api/guests", s.guestH.Create)
	mux.HandleFunc("GET /api/guests/household/{id}", s.guestH.ListForHousehold)
	mux.HandleFunc("PATCH /api/guests/{id}", s.guestH.Update)
	mux.HandleFunc("DELETE /api/guests/{id}", s.guestH.Delete)

	// Quiet times
	mux.HandleFunc("POST /api/quiet-times", s.quietH.Create)
	mux.HandleFunc("GET /api/quiet-times/household/{id}", s.quietH.ListForHousehold)
	mux.HandleFunc("PATCH /api/quiet-times/{id}", s.quietH.Update)
	mux.HandleFunc("DELETE /api/quiet-times/{id}", s.quietH.Delete)

	// Tasks
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("POST /api/tasks/all-members", s.taskH.CreateForAllMembers)
	mux.HandleFunc("GET /api/tasks/household/{id}", s.taskH.ListForHousehold)
	mux.HandleFunc("PATCH /api/tasks/{id}/status", s.taskH.UpdateStatus)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
}
