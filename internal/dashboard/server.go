// Package dashboard serves stored backtest runs over a small JSON API so
// results can be browsed and compared after the fact.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/manisahni/optionslab-sub000/internal/storage"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     storage.Interface
	logger    *logrus.Logger
	addr      string
	authToken string
}

type Config struct {
	Addr      string
	AuthToken string
}

func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Get("/api/runs/{id}/trades", s.handleGetTrades)
	s.router.Get("/api/runs/{id}/equity", s.handleGetEquity)
	s.router.Get("/api/runs/{id}/audit", s.handleGetAudit)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list runs")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	s.writeJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.runError(w, id, err, "Failed to load run")
		return
	}
	s.writeJSON(w, run)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	trades, err := s.store.LoadTrades(r.Context(), id)
	if err != nil {
		s.runError(w, id, err, "Failed to load trades")
		return
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleGetEquity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	curve, err := s.store.LoadEquity(r.Context(), id)
	if err != nil {
		s.runError(w, id, err, "Failed to load equity curve")
		return
	}
	s.writeJSON(w, curve)
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lines, err := s.store.LoadAuditLog(r.Context(), id)
	if err != nil {
		s.runError(w, id, err, "Failed to load audit log")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	s.writeJSON(w, lines)
}

func (s *Server) runError(w http.ResponseWriter, id string, err error, msg string) {
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, fmt.Sprintf("run %s not found", id), http.StatusNotFound)
		return
	}
	s.logger.WithError(err).WithField("run_id", id).Error(msg)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
