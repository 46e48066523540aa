// Package api provides the HTTP API server and handlers for the ToolLender
// edge server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/toollender/toollender/internal/auth"
	"github.com/toollender/toollender/internal/blob"
	"github.com/toollender/toollender/internal/connectivity"
	"github.com/toollender/toollender/internal/localstore"
	"github.com/toollender/toollender/internal/metrics"
	"github.com/toollender/toollender/internal/ratelimit"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/repository"
	"github.com/toollender/toollender/internal/search"
	"github.com/toollender/toollender/internal/sse"
)

// Services are the collaborators the handlers call. Search, Blobs,
// Connectivity and Metrics are optional.
type Services struct {
	Tools        *repository.ToolRepository
	Users        *repository.UserRepository
	Associations *repository.AssociationRepository
	Auth         *auth.Service
	Search       *search.Index
	Blobs        *blob.Store
	Connectivity *connectivity.Monitor
	Sync         *refresh.Synchronizer
	Local        *localstore.Store
	Events       *sse.Manager
	Metrics      *metrics.Metrics
}

// Options configures the HTTP surface.
type Options struct {
	Version     string
	CORSOrigins []string
	// AuthLimiter throttles sign-in and sign-up per client IP. Nil disables it.
	AuthLimiter *ratelimit.KeyedRateLimiter
	// DataPath is checked for free space by the health endpoint. Empty skips the check.
	DataPath string
	Logger   *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger
	dataPath string
	started  time.Time
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		services: services,
		router:   chi.NewRouter(),
		logger:   logger,
		dataPath: opts.DataPath,
		started:  time.Now(),
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("ToolLender API", opts.Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerToolRoutes()
	s.registerSearchRoutes()
	s.registerUserRoutes()
	s.registerAssociationRoutes()
	s.registerBlobRoutes()
	s.registerConnectivityRoutes()
	s.registerStreamRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, e.g. for exporting the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.services.Metrics != nil {
		s.router.Use(s.services.Metrics.Instrument)
	}
	if opts.AuthLimiter != nil {
		s.router.Use(limitPaths(RateLimitMiddleware(opts.AuthLimiter, s.logger),
			"/api/v1/auth/signin", "/api/v1/auth/signup"))
	}
	s.router.Use(authMiddleware(s.services.Auth))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// registerStreamRoutes mounts the plain handlers that huma cannot express:
// the event stream and the Prometheus scrape endpoint.
func (s *Server) registerStreamRoutes() {
	if s.services.Events != nil {
		s.router.Get("/api/v1/events", sse.NewHandler(s.services.Events, s.logger).ServeHTTP)
	}
	if s.services.Metrics != nil {
		s.router.Handle("/metrics", s.services.Metrics.Handler())
	}
}
