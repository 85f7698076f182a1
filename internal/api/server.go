package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/agencyops/harrier/internal/domain"
	"github.com/agencyops/harrier/internal/exclusion"
	"github.com/agencyops/harrier/internal/recon"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, service *recon.Service, custom *exclusion.CustomEngine, version string) *Server {
	handler := NewHandler(repo, cache, bus, service, custom, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Statement ingestion and retrieval
		r.Post("/statements", handler.UploadStatement)
		r.Get("/statements/{id}", handler.GetStatement)
		r.Get("/statements/{id}/runs", handler.ListStatementRuns)

		// Synchronous reconciliation
		r.Post("/validate", handler.Validate)

		// Validation run retrieval
		r.Get("/runs/{id}", handler.GetRun)

		// Rate table management
		r.Get("/ratetables", handler.ListRateTables)
		r.Get("/ratetables/{id}", handler.GetRateTable)
		r.Post("/ratetables", handler.CreateRateTable)

		// Custom exclusion rule management
		r.Get("/rules", handler.ListCustomRules)
		r.Get("/rules/{id}", handler.GetCustomRule)
		r.Post("/rules", handler.CreateCustomRule)
		r.Delete("/rules/{id}", handler.DeleteCustomRule)
		r.Post("/rules/reload", handler.ReloadCustomRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
