// Package web provides an HTTP status server for the ledmodes daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/ledmodes/internal/input"
	"github.com/sweeney/ledmodes/internal/metrics"
	"github.com/sweeney/ledmodes/internal/status"
)

// CommandFunc injects a named event, e.g. "b1" or "timeout".
type CommandFunc func(name string) error

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	command    CommandFunc
}

// New creates a Server that reads state from the given tracker. With a
// non-nil m, requests are instrumented and /metrics is served. With a
// non-nil command, POST /command/{name} injects events.
func New(addr string, tracker *status.Tracker, m *metrics.Metrics, command CommandFunc) *Server {
	s := &Server{tracker: tracker, command: command}

	instrument := func(route string) func(http.Handler) http.Handler {
		if m == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return m.Middleware(route)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.With(instrument("index")).Get("/", s.handleIndex)
	r.With(instrument("index")).Get("/index.html", s.handleIndex)
	r.With(instrument("json")).Get("/index.json", s.handleJSON)
	if command != nil {
		r.With(instrument("command")).Post("/command/{name}", s.handleCommand)
	}
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	err := s.command(chi.URLParam(r, "name"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, input.ErrThrottled):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
