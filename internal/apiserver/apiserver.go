// Package apiserver exposes task submission and control over a JSON HTTP API.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/log"
)

// Config is the configuration for the API server.
type Config struct {
	ListenAddr     string
	Service        *taskctl.Service
	AllowedOrigins []string
	Logger         log.Logger
}

func (c *Config) defaults() error {
	if c.Service == nil {
		return fmt.Errorf("task service is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "apiserver.Server"})
	return nil
}

// Server is the HTTP API server.
type Server struct {
	server *http.Server
	logger log.Logger
}

// NewHandler builds the HTTP handler with all routes registered.
func NewHandler(cfg Config) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handlers{svc: cfg.Service, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", h.createTask)
		r.Get("/", h.listTasks)
		r.Get("/{id}", h.getTask)
		r.Delete("/{id}", h.deleteTask)
		r.Post("/{id}/stop", h.stopTask)
		r.Post("/{id}/pause", h.pauseTask)
		r.Post("/{id}/resume", h.resumeTask)
	})

	return r, nil
}

// New creates a new API server with all routes registered.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	handler, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}

	return &Server{
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: cfg.Logger,
	}, nil
}

// ListenAndServe starts serving requests and blocks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("Listening on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infof("Shutting down API server")
	return s.server.Shutdown(ctx)
}
