// Package server provides the HTTP API for logsentry.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/app"
	"github.com/hyperjump/logsentry/internal/config"
)

// Server is the HTTP server for the logsentry API.
type Server struct {
	app    *app.Components
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server over components c.
func NewServer(c *app.Components, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		app:    c,
		config: cfg,
		logger: logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/detect", s.handleDetect)
		r.Post("/calibrate", s.handleCalibrate)
		r.Get("/threshold", s.handleThreshold)
		r.Get("/status", s.handleStatus)

		r.Route("/baseline", func(r chi.Router) {
			r.Post("/", s.handleAddBaseline)
			r.Get("/search", s.handleSearchBaseline)
			r.Get("/{id}", s.handleGetBaseline)
			r.Delete("/{id}", s.handleDeleteBaseline)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Post("/check", s.handleRulesCheck)
			r.Get("/hunt", s.handleRulesHunt)
			r.Post("/reload", s.handleRulesReload)
		})
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
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
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
