package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
	"github.com/opensource-finance/payrisk/internal/model"
	"github.com/opensource-finance/payrisk/internal/rules"
	"github.com/opensource-finance/payrisk/internal/scoring"
	"github.com/opensource-finance/payrisk/internal/stats"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, pipeline *feature.Pipeline, store *model.Store, processor *scoring.Processor, engine *rules.Engine, statsSvc *stats.Service, version string, modelCfg domain.ModelConfig) *Server {
	handler := NewHandler(repo, cache, bus, pipeline, store, processor, engine, statsSvc, version, modelCfg)
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

	// Dashboard (browser UI, no tenant header needed to load the page)
	router.Get("/", handler.Dashboard)

	// API routes (tenant required)
	router.Route("/api", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Prediction
		r.Post("/predict", handler.Predict)
		r.Post("/predict/batch", handler.PredictBatch)
		r.Get("/predictions/{id}", handler.GetPrediction)

		// Stats
		r.Get("/stats", handler.Stats)

		// Model management
		r.Get("/model", handler.GetModel)
		r.Post("/model/reload", handler.ReloadModel)

		// Label rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Training history
		r.Get("/training-runs", handler.ListTrainingRuns)
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
