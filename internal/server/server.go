// Package server exposes subwatch's health and metrics HTTP surface: a
// chi router wired with recovery and request-id middleware, /health*
// probes, and a /metrics endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3leaps/subwatch/internal/apperrors"
	"github.com/3leaps/subwatch/internal/server/handlers"
	"github.com/3leaps/subwatch/internal/server/middleware"
)

// Server wraps a chi router and the host/port it will listen on.
type Server struct {
	host    string
	port    int
	router  chi.Router
	manager *handlers.HealthManager
}

// New builds a Server bound to host:port, with its own HealthManager
// (registered under the "/health*" routes) and the version string used
// for reporting.
func New(host string, port int) *Server {
	manager := handlers.NewHealthManager("dev")
	return newWithManager(host, port, manager)
}

// NewWithVersion is New but sets the reported health-check version.
func NewWithVersion(host string, port int, version string) *Server {
	return newWithManager(host, port, handlers.NewHealthManager(version))
}

func newWithManager(host string, port int, manager *handlers.HealthManager) *Server {
	s := &Server{host: host, port: port, manager: manager}
	s.router = s.buildRouter()
	return s
}

// RegisterChecker adds a health checker visible to every /health* route.
func (s *Server) RegisterChecker(name string, checker handlers.HealthChecker) {
	s.manager.RegisterChecker(name, checker)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", s.manager.HealthHandler)
	r.Get("/health/live", s.manager.LivenessHandler)
	r.Get("/health/ready", s.manager.ReadinessHandler)
	r.Get("/health/startup", s.manager.StartupHandler)

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"subwatch"}`))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// Handler returns the server's root http.Handler, for use with
// httptest.Server or an external http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the port the server was constructed with.
func (s *Server) Port() int { return s.port }

// ListenAndServe runs the server until ctx is cancelled, then shuts it
// down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, readTimeout, writeTimeout, idleTimeout, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:         s.host + ":" + strconv.Itoa(s.port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}
