// Package server provides the HTTP API for Tazune.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/answer"
	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/retrieval"
	"github.com/shiokaze/tazune/internal/storage"
)

// QuestionParser mirrors the interpreter contract used by the ask and search
// handlers.
type QuestionParser = answer.QuestionParser

// Server is the HTTP server for the Tazune API.
type Server struct {
	streamer    *answer.Streamer
	interpreter QuestionParser
	pipeline    *retrieval.Pipeline
	storage     storage.Store
	config      *config.ServerConfig
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	streamer *answer.Streamer,
	interpreter QuestionParser,
	pipeline *retrieval.Pipeline,
	storage storage.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		streamer:    streamer,
		interpreter: interpreter,
		pipeline:    pipeline,
		storage:     storage,
		config:      cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// No Timeout middleware on /ask: the answer stream is long-lived and
	// ends when the model finishes or the client disconnects.
	r.Post("/api/v1/ask", s.handleAsk)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/api/v1/search", s.handleSearch)
		r.Get("/api/v1/history", s.handleHistory)
		r.Delete("/api/v1/history", s.handleClearHistory)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
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
