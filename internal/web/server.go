package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// Dependencies are the services the HTTP API exposes.
type Dependencies struct {
	Processor handlers.VideoProcessor
	Enroller  handlers.Enroller
	Roster    database.RosterReader
	// StorageRoot is the local archive directory served under /storage/, empty to disable.
	StorageRoot string
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Dependencies
	log        logs.Log
	router     *chi.Mux
	httpServer *http.Server
	jobManager *handlers.JobManager
}

// NewServer creates a new web server
func NewServer(log logs.Log, cfg *config.Config, deps Dependencies) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:     cfg,
		deps:       deps,
		log:        log,
		router:     r,
		jobManager: handlers.NewJobManager(),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  5 * time.Minute,  // video uploads
		WriteTimeout: 30 * time.Minute, // synchronous video processing and SSE
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Infof("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels running attendance jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infof("Shutting down web server...")

	if n := s.jobManager.CancelRunning(); n > 0 {
		s.log.Warnf("Cancelled %d running attendance jobs", n)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
