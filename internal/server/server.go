package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"tripwise-backend/internal/assistant"
	"tripwise-backend/internal/config"
	"tripwise-backend/internal/conversation"
	"tripwise-backend/internal/identity"
	"tripwise-backend/internal/logger"
	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/trips"
	"tripwise-backend/internal/types"
	"tripwise-backend/internal/users"
)

const maxBodyBytes = 1 << 20

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Engine   *assistant.Engine
	Identity identity.Provider
	Settings *settings.Service
	Trips    *trips.Service
	Users    *users.Service
	Sessions *conversation.Registry
	// Health, when set, is checked by /api/health.
	Health   HealthChecker
	Logger   *slog.Logger
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router   *chi.Mux
	cfg      config.Config
	engine   *assistant.Engine
	identity identity.Provider
	settings *settings.Service
	trips    *trips.Service
	users    *users.Service
	sessions *conversation.Registry
	health   HealthChecker
	logger   *slog.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	r := chi.NewRouter()
	s := &Server{
		router:   r,
		cfg:      cfg,
		engine:   deps.Engine,
		identity: deps.Identity,
		settings: deps.Settings,
		trips:    deps.Trips,
		users:    deps.Users,
		sessions: deps.Sessions,
		health:   deps.Health,
		logger:   deps.Logger,
	}

	if cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Session-Id", "X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.identify)
		r.Post("/api/aimodel", s.handleTurn)

		r.Get("/api/chat", s.handleChatSnapshot)
		r.Post("/api/chat", s.handleChat)
		r.Post("/api/chat/widget", s.handleChatWidget)
		r.Delete("/api/chat", s.handleChatReset)

		r.Get("/api/me", s.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)
			r.Get("/api/trips", s.handleListTrips)
			r.Post("/api/trips", s.handleSaveTrip)
			r.Get("/api/trips/{id}", s.handleGetTrip)
			r.Delete("/api/trips/{id}", s.handleDeleteTrip)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireCaller, s.requireAdmin)
			r.Get("/api/admin/config", s.handleGetAdminConfig)
			r.Post("/api/admin/config", s.handleUpdateAdminConfig)
			r.Get("/api/admin/trips", s.handleAdminListTrips)
			r.Delete("/api/admin/trips/{id}", s.handleAdminDeleteTrip)
			r.Get("/api/admin/users", s.handleAdminListUsers)
			r.Delete("/api/admin/users/{id}", s.handleAdminDeleteUser)
		})
	})
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("store health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTurn is the stateless generation endpoint.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req types.TurnRequest
	if err := readJSON(w, r, &req); err != nil {
		msg := "Invalid request body"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "isFinal" {
			msg = "Invalid request: isFinal must be a boolean"
		}
		writeJSON(w, http.StatusBadRequest, types.TurnResponse{Resp: msg, UI: trip.DirectiveNone, Error: types.ErrInvalidInput})
		return
	}
	reply := s.engine.Turn(r.Context(), callerFrom(r.Context()), req)
	setRemaining(w, reply.Remaining)
	writeJSON(w, reply.Status, reply.Body)
}

func setRemaining(w http.ResponseWriter, remaining int) {
	if remaining >= 0 {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
}

type ctxKey int

const callerKey ctxKey = 0

func callerFrom(ctx context.Context) identity.Caller {
	c, _ := ctx.Value(callerKey).(identity.Caller)
	return c
}

// identify resolves the caller once per request and records signed-in
// callers. A rejected token is a 401; an unreachable identity provider
// degrades to an anonymous caller.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.identity.Identify(r)
		if errors.Is(err, identity.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, types.ErrAuth, "Invalid or expired credentials")
			return
		}
		if err != nil {
			s.logger.Warn("identity lookup failed, continuing anonymously",
				"request_id", logger.RequestID(r.Context()), "error", err)
		}
		if s.users != nil && caller.Authenticated() {
			if err := s.users.Register(r.Context(), caller); err != nil {
				s.logger.Warn("recording user failed",
					"request_id", logger.RequestID(r.Context()), "user_id", caller.ID, "error", err)
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	})
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !callerFrom(r.Context()).Authenticated() {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in to continue")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := callerFrom(r.Context())
		if !s.settings.IsAdmin(r.Context(), c.Email) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin access is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"request_id", logger.RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}
