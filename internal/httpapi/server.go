package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/flowline/internal/config"
	"github.com/jmylchreest/flowline/internal/store"
	"github.com/jmylchreest/flowline/pkg/pipeline/progress"
)

// Server is the run-history/progress HTTP API.
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
	store      *store.Store

	mu       sync.RWMutex
	trackers map[string]*progress.Tracker
}

// NewServer builds a Server backed by st for run history, registering the
// chi middleware chain and route table.
func NewServer(cfg config.ServerConfig, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger.With("component", "httpapi"),
		store:    st,
		trackers: make(map[string]*progress.Tracker),
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(RequestID)
	router.Use(Logging(s.logger))
	router.Use(Recovery(s.logger))
	router.Use(MaxRequestBody(cfg.MaxRequestBodyBytes.Bytes()))

	router.Get("/runs", s.handleListRuns)
	router.Get("/runs/{id}", s.handleGetRun)
	router.Get("/runs/{id}/progress", s.handleRunProgress)

	s.router = router
	return s
}

// Router exposes the chi router for tests or embedding in a larger mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterTracker makes tr's live events visible at
// GET /runs/{runID}/progress until UnregisterTracker is called.
func (s *Server) RegisterTracker(runID string, tr *progress.Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[runID] = tr
}

// UnregisterTracker stops exposing runID's live event stream to new
// requests; SSE connections already open keep their subscription until
// the client disconnects.
func (s *Server) UnregisterTracker(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, runID)
}

func (s *Server) trackerFor(runID string) (*progress.Tracker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.trackers[runID]
	return tr, ok
}

// Start runs the HTTP server until it's stopped or fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("starting httpapi server", slog.String("address", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting httpapi server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting up to cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
