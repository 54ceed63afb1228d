// Package server provides the HTTP server for the device-manager API.
//
// The server exposes the device snapshot, container lifecycle operations,
// command submission and status, log streaming, and Prometheus metrics. It
// is a long-lived process with graceful shutdown: on stop it drains active
// connections before returning.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/config"
	"github.com/edgekit/device-manager/internal/logger"
	"github.com/edgekit/device-manager/internal/metrics"
)

// Server is the device-manager HTTP server.
type Server struct {
	cfg        *config.Config
	handler    *Handler
	metrics    *metrics.Metrics
	httpServer *http.Server
}

// NewServer assembles the server from its dependencies. It does not bind
// the listen address; call Start for that.
func NewServer(cfg *config.Config, h *Handler, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		handler: h,
		metrics: m,
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.routes(),
		// No write timeout: log following is a long-lived streaming
		// response.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	if s.cfg.Server.RateLimitRPS > 0 {
		r.Use(rateLimit(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst))
	}
	r.Use(requestMetrics(s.metrics))
	if s.cfg.Server.APILoggingEnabled {
		r.Use(requestLogger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handler.Health)
		r.Get("/version", s.handler.Version)
		r.Get("/device", s.handler.Device)

		r.Route("/containers", func(r chi.Router) {
			r.Get("/", s.handler.ListContainers)
			r.Get("/{id}", s.handler.GetContainer)
			r.Get("/{id}/logs", s.handler.ContainerLogs)
			r.Post("/{id}/start", s.handler.ContainerAction(api.CommandStart))
			r.Post("/{id}/stop", s.handler.ContainerAction(api.CommandStop))
			r.Post("/{id}/restart", s.handler.ContainerAction(api.CommandRestart))
			r.Delete("/{id}", s.handler.ContainerAction(api.CommandRemove))
		})

		r.Route("/commands", func(r chi.Router) {
			r.Post("/", s.handler.SubmitCommand)
			r.Get("/", s.handler.ListCommands)
			r.Get("/{id}", s.handler.GetCommand)
		})
	})

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// Start begins serving and blocks until the server is shut down. It
// returns http.ErrServerClosed after a graceful Stop.
func (s *Server) Start() error {
	logger.Info("Starting device-manager server on %s", s.cfg.Addr())
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down, waiting for active requests up to
// the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}
