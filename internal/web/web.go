// Package web exposes the published artifacts and run history over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"calharvest/internal/config"
	"calharvest/internal/history"
	appLog "calharvest/internal/log"
)

// Server serves the published calendar artifact, the JSON event dump and
// the harvest run history.
type Server struct {
	cfg   *config.Config
	store history.Store
}

// NewServer constructs a Server. store may be nil when run history is
// disabled.
func NewServer(cfg *config.Config, store history.Store) *Server {
	return &Server{cfg: cfg, store: store}
}

// Router returns the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/calendar.ics", s.handleCalendar)
	r.Get("/events.json", s.handleEvents)
	r.Get("/api/runs", s.handleRuns)

	return r
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves the primary published artifact. http.ServeFile maps
// a missing artifact (no successful run yet) to 404.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	http.ServeFile(w, r, s.cfg.ICSPath)
}

// handleEvents serves the JSON event dump written on the last successful
// publish.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	http.ServeFile(w, r, s.cfg.JSONPath)
}

// handleRuns returns recent harvest run outcomes, newest first.
//
// GET /api/runs?limit=20
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history disabled")
		return
	}

	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	runs, err := s.store.Recent(limit)
	if err != nil {
		appLog.Error("run history query failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read run history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
