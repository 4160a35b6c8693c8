// Package core provides the ops HTTP chassis for the lifecycle engine: a
// chi router exposing health probes, Prometheus metrics and a manual
// cycle trigger. It carries no storefront business routes.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront/internal/scheduler"
)

// TaskRunner runs a single cycle on demand.
type TaskRunner interface {
	RunOnce(ctx context.Context, task scheduler.TaskType) (scheduler.CycleReport, error)
}

// Server encapsulates the ops endpoints' dependencies.
type Server struct {
	Logger       *slog.Logger
	HealthProbes []HealthProbe
	Runner       TaskRunner
	// Metrics serves /metrics when set (the Prometheus recorder's handler).
	Metrics http.Handler

	router *chi.Mux
	http   *http.Server
}

// NewServer builds the server and mounts its routes.
func NewServer(addr string, logger *slog.Logger) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("ops address must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Logger: logger,
		router: chi.NewRouter(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the router. Routes must be mounted first.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.Logger.Info("ops server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("ops server shutdown initiated")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}
