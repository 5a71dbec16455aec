package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/rollcall/internal/campaign"
	"github.com/foxzi/rollcall/internal/config"
)

// Runner triggers a forced delivery pass; satisfied by *scheduler.Scheduler.
type Runner interface {
	Run(ctx context.Context, community string, force bool) (int, error)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	manager    *campaign.Manager
	runner     Runner
	config     *config.APIConfig
	logger     *slog.Logger
}

// NewServer creates a new API server
func NewServer(mgr *campaign.Manager, runner Runner, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		manager: mgr,
		runner:  runner,
		config:  cfg,
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/campaigns/{community}", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/extend", s.handleExtend)
			r.Post("/close", s.handleClose)
			r.Post("/resend", s.handleResend)
			r.Put("/config", s.handleConfigure)
			r.Get("/status", s.handleStatus)
		})

		// Gateway webhook for interactive button callbacks.
		r.Post("/answers", s.handleAnswer)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
