package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
	"github.com/opensource-finance/osprey-riskscore/internal/pipeline"
	"github.com/opensource-finance/osprey-riskscore/internal/worker"
)

// Options carries the optional parts of the server.
type Options struct {
	Version string

	// Tenants restricts X-Tenant-ID. Empty admits any tenant.
	Tenants []string

	// Worker consumes POST /ingest. Without one the endpoint answers 503.
	Worker *worker.Worker
}

// Server represents the HTTP API server.
type Server struct {
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, p *pipeline.Pipeline, opts Options) *Server {
	handler := NewHandler(p, opts.Version, opts.Worker)
	router := chi.NewRouter()

	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(requestMiddleware)
	router.Use(recoverMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if p.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(tenantMiddleware(opts.Tenants))

		r.Get("/weights", handler.Weights)
		r.Post("/score", handler.Score)
		r.Post("/ingest", handler.Ingest)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", handler.CreateRun)
			r.Get("/", handler.ListRuns)
			r.Get("/{id}", handler.GetRun)
			r.Get("/{id}/transactions", handler.ListRunTransactions)
			r.Get("/{id}/transactions/{txId}", handler.GetRunTransaction)
		})
	})

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// shutdown, including one that happened before Start.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
