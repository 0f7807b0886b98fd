// Package server exposes the semantic index over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/semdex/internal/config"
	"github.com/hyperjump/semdex/internal/indexer"
	"github.com/hyperjump/semdex/internal/semantic"
	"go.uber.org/zap"
)

// DirectoryLister reports the knowledge-base directories being watched.
type DirectoryLister interface {
	Directories() []string
}

// Server is the HTTP server for the semdex API.
type Server struct {
	indexer *indexer.Indexer
	index   *semantic.Index
	config  *config.Config
	watch   DirectoryLister // nil when no directories are watched
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server over idx. watch may be nil.
func NewServer(idx *indexer.Indexer, cfg *config.Config, logger *zap.Logger, watch DirectoryLister) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		indexer: idx,
		index:   idx.Index(),
		config:  cfg,
		watch:   watch,
		logger:  logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/index/build", s.handleBuild)
		r.Post("/index/restore", s.handleRestore)
		r.Post("/index/compact", s.handleCompact)
		r.Delete("/index", s.handleClear)

		r.Post("/documents", s.handleAddDocument)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Put("/documents/{id}", s.handleUpdateDocument)
		r.Delete("/documents/{id}", s.handleRemoveDocument)
		r.Get("/documents/{id}/similar", s.handleSimilarDocuments)

		r.Get("/search", s.handleSearch)
		r.Post("/search", s.handleSearch)
		r.Get("/keyword", s.handleKeywordSearch)
		r.Get("/similarity", s.handleSimilarity)
		r.Post("/cluster", s.handleCluster)
	})
	return r
}

// Start serves the API and blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
