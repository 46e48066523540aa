// Package docserver exposes a remote.Backend over HTTP. It is the REST face
// of the document store, consumed by internal/remote/httpbackend.
package docserver

import (
	"context"
	"crypto/subtle"
	"encoding/json/v2"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/toollender/toollender/internal/docstore"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/http/response"
	"github.com/toollender/toollender/internal/remote"
)

// APIKeyHeader carries the shared secret when one is configured.
const APIKeyHeader = "X-API-Key"

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes document requests to a backend.
type Server struct {
	backend remote.Backend
	apiKey  string
	router  *chi.Mux
	logger  *slog.Logger
}

// NewServer creates the HTTP server. An empty apiKey disables the check.
func NewServer(backend remote.Backend, apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		backend: backend,
		apiKey:  apiKey,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1/docs/{collection}", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/", s.handleQuery)
		r.Post("/", s.handleAdd)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleSet)
		r.Delete("/{id}", s.handleDelete)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				response.Unauthorized(w, "missing or invalid API key", s.logger)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.backend.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, domainerrors.CodeRemoteUnavailable, "database unavailable", s.logger)
			return
		}
	}
	response.Success(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	docs, err := s.backend.Query(r.Context(), chi.URLParam(r, "collection"), q)
	if err != nil {
		s.handleBackendError(w, err)
		return
	}
	if docs == nil {
		docs = []remote.Document{}
	}
	response.Success(w, docs, s.logger)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := s.backend.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		s.handleBackendError(w, err)
		return
	}
	response.Success(w, doc, s.logger)
}

// SetRequest is the body of PUT /v1/docs/{collection}/{id}.
type SetRequest struct {
	Fields remote.Fields `json:"fields"`
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var req SetRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}
	if req.Fields == nil {
		response.BadRequest(w, "fields are required", s.logger)
		return
	}
	mode := remote.Overwrite
	if r.URL.Query().Get("merge") == "true" {
		mode = remote.Merge
	}
	err := s.backend.Set(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), req.Fields, mode)
	if err != nil {
		s.handleBackendError(w, err)
		return
	}
	response.NoContent(w)
}

// AddRequest is the body of POST /v1/docs/{collection}.
type AddRequest struct {
	Fields    remote.Fields `json:"fields"`
	UniqueKey string        `json:"unique_key,omitempty"`
}

// AddResponse is the data of a successful add.
type AddResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}
	if req.Fields == nil {
		response.BadRequest(w, "fields are required", s.logger)
		return
	}
	docID, err := s.backend.Add(r.Context(), chi.URLParam(r, "collection"), req.Fields, req.UniqueKey)
	if err != nil {
		s.handleBackendError(w, err)
		return
	}
	response.Created(w, AddResponse{ID: docID}, s.logger)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.backend.Delete(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		s.handleBackendError(w, err)
		return
	}
	response.NoContent(w)
}

// handleBackendError turns name validation failures into 400s.
func (s *Server) handleBackendError(w http.ResponseWriter, err error) {
	if errors.Is(err, docstore.ErrInvalidName) {
		response.BadRequest(w, err.Error(), s.logger)
		return
	}
	response.HandleError(w, err, s.logger)
}
