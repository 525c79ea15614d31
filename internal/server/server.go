// Package server exposes a coordinator over HTTP: submit and cancel
// requests, follow listener callbacks as server-sent events, and inspect or
// reset learned capabilities and conversation memory.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/polyglot-chat-core/internal/coordinator"
)

// adminTimeout bounds every route except the event stream.
const adminTimeout = 30 * time.Second

type Server struct {
	Router *chi.Mux
	Port   int

	coord  *coordinator.Coordinator
	events *hub
	remove func()
	logger *slog.Logger

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

func New(port int, coord *coordinator.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "chatcore")
	})

	s := &Server{
		Router: r,
		Port:   port,
		coord:  coord,
		events: newHub(logger),
		logger: logger,
	}
	s.remove = coord.AddListener(s.events)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(TimeoutMiddleware(adminTimeout))
			r.Post("/generate", s.handleGenerate)
			r.Post("/cancel", s.handleCancel)
			r.Get("/capabilities", s.handleListCapabilities)
			r.Delete("/capabilities", s.handleResetCapabilities)
			r.Delete("/memory", s.handleClearMemory)
			r.Get("/settings", s.handleSettings)
		})
	})

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.http
	s.mu.Unlock()

	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown detaches from the coordinator, ends open event streams and
// stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.http
	s.mu.Unlock()

	s.remove()
	s.events.close()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
