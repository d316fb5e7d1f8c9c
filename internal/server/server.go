// Package server provides the HTTP API for ragpipe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/hyperjump/ragpipe/internal/models"
	"go.uber.org/zap"
)

// Engine answers and retrieves.
type Engine interface {
	Answer(ctx context.Context, query string, n int) (*models.Answer, error)
	Retrieve(ctx context.Context, query string, n int) ([]models.Hit, error)
}

// StatusFunc reports the current collection status.
type StatusFunc func(ctx context.Context) (*models.Status, error)

// ReindexFunc rebuilds the collection.
type ReindexFunc func(ctx context.Context) error

// Server is the HTTP server for the ragpipe API. Engine use and reindexing are serialised,
// so requests never observe a half-rebuilt collection.
type Server struct {
	engine     Engine
	status     StatusFunc
	reindex    ReindexFunc
	config     *config.ServerConfig
	maxResults int
	logger     *zap.Logger
	server     *http.Server
	mu         sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithStatus enables GET /api/v1/status.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// WithReindex enables POST /api/v1/reindex.
func WithReindex(fn ReindexFunc) Option {
	return func(s *Server) { s.reindex = fn }
}

// WithMaxResults caps n_results in requests.
func WithMaxResults(n int) Option {
	return func(s *Server) { s.maxResults = n }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine Engine, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/retrieve", s.handleRetrieve)
	r.Get("/api/v1/status", s.handleStatus)
	r.Post("/api/v1/reindex", s.handleReindex)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Reindex runs the configured rebuild while holding the engine lock. It is also the
// callback for the data-directory watcher.
func (s *Server) Reindex(ctx context.Context) error {
	if s.reindex == nil {
		return fmt.Errorf("reindex not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reindex(ctx)
}
