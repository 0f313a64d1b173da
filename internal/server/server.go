// Package server is the HTTP front end of a batchlog node: health probes,
// version, Prometheus metrics and read-only job and cluster queries.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/batchlog/internal/errors"
	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/internal/server/handlers"
	"github.com/3leaps/batchlog/internal/server/middleware"
)

// Server owns the router and the underlying http.Server.
type Server struct {
	host string
	port int

	router  *chi.Mux
	api     *handlers.API
	metrics http.Handler

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAPI mounts the job and cluster query routes.
func WithAPI(api *handlers.API) Option {
	return func(s *Server) { s.api = api }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithTimeouts sets the http.Server timeouts. Zero values keep the defaults.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
	}
}

// New builds a server listening on host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestLogger)
	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/reasons", func(r chi.Router) {
		r.Get("/bands", handlers.ListBands)
		r.Get("/{kind}/{code}", handlers.GetReason)
	})

	if s.api != nil {
		r.Get("/status", s.api.GetStatus)
		r.Get("/cluster", s.api.GetCluster)
		r.Get("/jobs", s.api.ListJobs)
		r.Get("/jobs/{id}", s.api.GetJob)
		r.Get("/archive/jobs", s.api.ListArchivedJobs)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	observability.ServerLogger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
