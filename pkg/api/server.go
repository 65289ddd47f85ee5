// Package api serves the DoG pipeline over HTTP.
//
// # Endpoints
//
//	POST /v1/dog          multipart upload, one or more "image" parts
//	GET  /v1/runs         recent runs from the history store
//	GET  /v1/runs/{id}    one run
//	GET  /v1/stats        process counters
//	GET  /v1/version      build information
//	GET  /healthz         liveness
//
// POST /v1/dog accepts the filter parameters as query parameters (sigma, k,
// radius, boundary, method, background, quality, mark, format) and responds
// with the stacked image. Errors are JSON objects of the form
// {"code": "...", "message": "...", "input": "..."}.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/dogstack/pkg/history"
	"github.com/matzehuels/dogstack/pkg/observability"
	"github.com/matzehuels/dogstack/pkg/pipeline"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"

	// DefaultMaxUploadBytes caps the request body of POST /v1/dog.
	DefaultMaxUploadBytes = 32 << 20

	shutdownTimeout = 10 * time.Second
)

// Config configures a Server.
type Config struct {
	Addr           string
	MaxUploadBytes int64

	// Defaults seeds the options of every request before query parameters
	// are applied.
	Defaults pipeline.Options
}

// Server is the HTTP front end of a pipeline.Runner.
type Server struct {
	cfg      Config
	runner   *pipeline.Runner
	history  history.Store
	counters *observability.Counters
	logger   *log.Logger
	router   chi.Router
}

// New creates a server. A nil store disables history; nil counters disable
// the stats endpoint's numbers but keep it reachable.
func New(cfg Config, runner *pipeline.Runner, store history.Store, counters *observability.Counters, logger *log.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if store == nil {
		store = history.NullStore{}
	}
	if counters == nil {
		counters = observability.NewCounters()
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:      cfg,
		runner:   runner,
		history:  store,
		counters: counters,
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/dog", s.handleDoG)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/stats", s.handleStats)
		r.Get("/version", s.handleVersion)
	})
	return r
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

// logRequests logs each request and reports it to the HTTP hooks.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.HTTP().OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		d := time.Since(start)
		observability.HTTP().OnResponse(r.Context(), r.Method, r.URL.Path, status, d)
		s.logger.Debug("request",
			"id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", d)
	})
}
