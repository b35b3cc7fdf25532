// Package server exposes a small debug HTTP surface for the daemon:
// liveness and the current protection statistics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yunwei37/agentcgroup/internal/controller"
	"github.com/yunwei37/agentcgroup/internal/memcg"
)

// Server serves /healthz and /stats.
type Server struct {
	engine *memcg.Engine
	ctrl   controller.Controller
	logger *zap.Logger
	start  time.Time

	http *http.Server
}

// New creates the debug server. The engine may be nil when the kernel
// backend is active.
func New(addr string, engine *memcg.Engine, ctrl controller.Controller, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		ctrl:   ctrl,
		logger: logger.Named("server"),
		start:  time.Now(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("debug server listening", zap.String("addr", s.http.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Backend: s.ctrl.Backend(),
		Uptime:  time.Since(s.start).Round(time.Second).String(),
	})
}

type statsResponse struct {
	Counters   map[string]uint64 `json:"counters,omitempty"`
	Controller map[string]string `json:"controller"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Controller: s.ctrl.Stats(),
	}
	if s.engine != nil {
		stats := s.engine.Stats()
		resp.Counters = make(map[string]uint64, len(stats))
		for id := memcg.CounterID(0); int(id) < len(stats); id++ {
			resp.Counters[id.String()] = stats[id]
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}
