// Package api serves the JSON control and monitoring endpoints for running
// playback sessions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zsiec/reel/internal/ingest"
	"github.com/zsiec/reel/internal/player"
	"github.com/zsiec/reel/internal/stream"
)

// SessionView is the API representation of a running session.
type SessionView struct {
	Input string `json:"input"`
	player.Snapshot
}

// IngestView describes a listener-mode ingest stream.
type IngestView struct {
	Key string `json:"key"`
	ingest.SourceStats
}

// Server exposes the session manager over HTTP.
type Server struct {
	manager  *stream.Manager
	registry *ingest.Registry
	log      *slog.Logger
}

// NewServer creates an API server. registry may be nil when no listener
// is running. If log is nil, slog.Default() is used.
func NewServer(manager *stream.Manager, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		manager:  manager,
		registry: registry,
		log:      log.With("component", "api"),
	}
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCancelSession)
	mux.HandleFunc("GET /api/ingest", s.handleListIngest)
}

// Handler returns the API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerAPIRoutes(mux)
	return corsMiddleware(mux)
}

// Start serves HTTP on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.manager.Len()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	streams := s.manager.List()
	views := make([]SessionView, 0, len(streams))
	for _, st := range streams {
		views = append(views, SessionView{Input: st.Source, Snapshot: st.Session.Snapshot()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, SessionView{Input: st.Source, Snapshot: st.Session.Snapshot()})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.manager.Cancel(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancel requested"})
}

func (s *Server) handleListIngest(w http.ResponseWriter, _ *http.Request) {
	views := []IngestView{}
	if s.registry != nil {
		for _, key := range s.registry.Keys() {
			if st, ok := s.registry.Get(key); ok {
				views = append(views, IngestView{Key: key, SourceStats: st.SourceStats()})
			}
		}
	}
	writeJSON(w, http.StatusOK, views)
}
