// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/howard-nolan/cozegate/internal/config"
	"github.com/howard-nolan/cozegate/internal/logging"
	"github.com/howard-nolan/cozegate/internal/metrics"
	"github.com/howard-nolan/cozegate/internal/provider"
	"github.com/howard-nolan/cozegate/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server holds the HTTP router and all dependencies that handlers need.
// Everything on it is read-only after New, so one Server serves all
// requests concurrently.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	provider provider.Provider
	logger   log.FieldLogger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	format   stream.Formatter
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler. Collectors are registered on reg and
// exposed from it at GET /metrics.
func New(cfg *config.Config, p provider.Provider, logger log.FieldLogger, reg *prometheus.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		provider: p,
		logger:   logger,
		metrics:  metrics.New(reg),
		gatherer: reg,
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions,
// gathered in one method so the routing table is easy to scan.
func (s *Server) routes() {
	r := chi.NewRouter()

	// --- Global middleware ---
	// RequestID runs first so every later log line can carry the id.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.logger))

	// middleware.Recoverer catches panics in handlers and returns a 500
	// instead of crashing the whole process.
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	// --- Routes ---
	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface; every request
// is delegated to chi's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
