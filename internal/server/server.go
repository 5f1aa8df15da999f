// Package server provides the HTTP API for Mitsuke.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/ai"
	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/indexer"
	"github.com/hyperjump/mitsuke/internal/query"
	"github.com/hyperjump/mitsuke/internal/store"
	"github.com/hyperjump/mitsuke/internal/suggest"
)

// Server is the HTTP server for the Mitsuke API.
type Server struct {
	engine      *query.Engine
	coordinator *indexer.Coordinator
	store       *store.Store
	suggest     *suggest.Service
	ai          *ai.Client
	config      *config.ServerConfig
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *query.Engine,
	coord *indexer.Coordinator,
	st *store.Store,
	sg *suggest.Service,
	aiClient *ai.Client,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:      engine,
		coordinator: coord,
		store:       st,
		suggest:     sg,
		ai:          aiClient,
		config:      cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/search", s.handleSearch)
	r.Post("/search", s.handleSearchPost)
	r.Post("/index/folder", s.handleIndexFolder)
	r.Post("/index/path", s.handleIndexPath)
	r.Post("/index/rebuild", s.handleRebuild)
	r.Post("/index/status", s.handleIndexStatus)
	r.Post("/index/batch", s.handleIndexBatch)
	r.Post("/index/delete", s.handleIndexDelete)
	r.Get("/search/suggestions", s.handleSuggestions)
	r.Get("/files/recent", s.handleRecentFiles)
	r.Get("/debug/stats", s.handleStats)
	r.Post("/ai/expand", s.handleAIExpand)
	r.Post("/ai/explain", s.handleAIExplain)
	r.Post("/ai/test", s.handleAITest)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
