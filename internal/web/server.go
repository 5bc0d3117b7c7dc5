// Package web serves the flowdeck dashboard: the authenticated HTML shell,
// the JSON procedure API, and the websocket live channel that keeps open
// dashboards in sync.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/jobs"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/session"
)

// Server is the flowdeck HTTP server.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.DB
	sessions *session.Manager
	gate     *auth.Gate
	jobs     *jobs.Dispatcher
	live     *liveRegistry
	metrics  *metrics

	handler http.Handler
	httpSrv *http.Server
}

// Options carries the server's collaborators.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.DB
	Sessions *session.Manager
	Gate     *auth.Gate
	Jobs     *jobs.Dispatcher

	// Registry lets tests isolate Prometheus registration; nil uses the
	// global registerer.
	Registry prometheus.Registerer
}

// New assembles the server and its route tree.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      opts.Config,
		logger:   logger,
		store:    opts.Store,
		sessions: opts.Sessions,
		gate:     opts.Gate,
		jobs:     opts.Jobs,
		metrics:  newMetrics(opts.Registry),
	}
	s.live = newLiveRegistry(s)
	s.handler = s.routes()
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HandleJobResult is the continuation for background jobs: connected
// dashboards drop their cached pages and re-render, and the requesting
// surfaces get a notice frame. Wire it via jobs.OnDone.
func (s *Server) HandleJobResult(result jobs.Result) {
	if !result.Ok() {
		s.metrics.jobsFailed.Inc()
		s.live.NotifyAll(notice{
			Level:   "error",
			Message: "generation failed for workflow " + result.Job().WorkflowID,
		})
		return
	}
	s.live.InvalidateAll()
	s.live.NotifyAll(notice{
		Level:   "info",
		Message: "generation finished for workflow " + result.Job().WorkflowID,
	})
}

// routes builds the chi route tree.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)

	// Pages: redirect anonymous users to the login flow.
	pageDenied := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
	r.Get("/login", s.handleLoginPage)
	r.Group(func(r chi.Router) {
		r.Use(s.gate.RequireAuthWith(pageDenied))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/live", s.handleLive)
	})

	// API: JSON 401 instead of a redirect.
	apiDenied := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(s.gate.RequireAuthWith(apiDenied))
		r.Post("/workflows.list", s.handleList)
		r.Post("/workflows.get", s.handleGet)
		r.Post("/workflows.create", s.handleCreate)
		r.Post("/workflows.update", s.handleUpdate)
		r.Post("/workflows.delete", s.handleDelete)
		r.Post("/workflows.generate", s.handleGenerate)
	})

	return r
}

// Start listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Server.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.live.CloseAll()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
