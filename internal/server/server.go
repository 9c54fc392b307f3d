package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"maestro/internal/instance"
	"maestro/pkg/logging"
)

const serverSubsystem = "HTTPServer"

const (
	defaultAddr        = ":8090"
	defaultReadTimeout = 10 * time.Second

	// Lifecycle handlers hold the connection for the full command
	// round-trip, so the write timeout must exceed the service's
	// request timeout.
	defaultWriteTimeout = 60 * time.Second
)

// Config holds the HTTP listener settings.
type Config struct {
	// Addr is the listen address. Empty means ":8090".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes the instance service over HTTP. All routes live under
// /api/v1 and every response body is JSON.
type Server struct {
	service    *instance.Service
	httpServer *http.Server
	listener   net.Listener
}

// New builds a server around the given instance service. The listener
// is not opened until Start.
func New(service *instance.Service, cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	s := &Server{service: service}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Handler returns the configured router. Exposed so tests can drive the
// routes through httptest without opening a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)

		r.Route("/instances", func(r chi.Router) {
			r.Post("/", s.handleCreateInstance)
			r.Get("/", s.handleListInstances)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetInstance)
				r.Delete("/", s.handleDeleteInstance)
				r.Post("/start", s.handleStartInstance)
				r.Post("/stop", s.handleStopInstance)
				r.Post("/restart", s.handleRestartInstance)
				r.Get("/configuration", s.handleGetConfiguration)
				r.Patch("/configuration", s.handlePatchConfiguration)
				r.Get("/runtime", s.handleGetRuntime)
			})
		})

		r.Post("/status-updates", s.handleStatusUpdate)
		r.Get("/status-changes", s.handleStatusChanges)
	})

	return r
}

// Start opens the listener and serves in the background. The returned
// error covers listener setup only; serve errors after startup are
// logged.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Error(serverSubsystem, err, "HTTP server stopped unexpectedly")
		}
	}()

	logging.Info(serverSubsystem, "Listening on %s", listener.Addr())
	return nil
}

// Addr reports the bound listen address, useful when the configured
// address had port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info(serverSubsystem, "Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.Debug(serverSubsystem, "%s %s -> %d in %s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
