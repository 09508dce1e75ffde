// Package http exposes the game and NASA proxy API, health probes, and
// Prometheus metrics over HTTP.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/game"
)

// GameService is the game API the handlers drive.
type GameService interface {
	Assess(c domain.Coordinate, hour *int) (domain.Assessment, error)
	ReportLocation(ctx context.Context, req game.VisitRequest) (game.VisitResult, error)
	Locations(ctx context.Context, userID string, limit int) ([]domain.LocationRecord, error)
	RemoveLocation(ctx context.Context, userID, locationID string) error
	Stats(ctx context.Context, userID string) (domain.UserGameStats, error)
	CompleteMission(ctx context.Context, userID, missionID string) (game.MissionResult, error)
	CollectData(ctx context.Context, c domain.Coordinate, hour *int) (game.Collection, error)
}

// Server exposes the REST API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	game       GameService
	nasa       game.NASA
	logger     *slog.Logger
}

// NewServer builds the router. corsOrigins is the allow-list for browser clients.
func NewServer(addr string, corsOrigins []string, svc GameService, nasaAPI game.NASA, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{
		game:   svc,
		nasa:   nasaAPI,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/assess", s.handleAssess)
		r.Get("/achievements", s.handleAchievements)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/locations", s.handleReportLocation)
			r.Get("/locations", s.handleListLocations)
			r.Delete("/locations/{locationID}", s.handleRemoveLocation)
			r.Get("/stats", s.handleStats)
			r.Post("/missions/{missionID}/complete", s.handleCompleteMission)
		})

		r.Route("/nasa", func(r chi.Router) {
			r.Get("/apod", s.handleAPOD)
			r.Get("/earth/assets", s.handleEarthAssets)
			r.Get("/gibs/tile", s.handleGIBSTile)
			r.Get("/cmr/granules", s.handleGranules)
			r.Get("/donki/{eventType}", s.handleDONKI)
			r.Get("/collect", s.handleCollect)
		})
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
