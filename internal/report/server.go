// Package report serves persisted refinement artifacts to the external
// dashboard: session listings, full iteration ledgers, and precomputed
// metrics exports in both theme variants.
package report

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"moveforge/internal/logging"
	"moveforge/internal/metrics"
	"moveforge/internal/refine"
	"moveforge/internal/store"
)

// SessionReader is the ledger surface the server reads from.
type SessionReader interface {
	ListSessions() ([]store.SessionSummary, error)
	Load(sessionID string) (*refine.Session, error)
}

// Server exposes the read-only report API.
type Server struct {
	reader  SessionReader
	tracker *RateTracker
	log     *logging.Logger
	httpSrv *http.Server
}

// NewServer creates a report server bound to addr.
func NewServer(addr string, reader SessionReader, log *logging.Logger) *Server {
	s := &Server{
		reader:  reader,
		tracker: NewRateTracker(120, time.Minute),
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.limited("/api/sessions", s.handleSessions))
	mux.HandleFunc("/api/sessions/", s.limited("/api/sessions/{id}", s.handleSession))

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("report server listening on %s", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains connections and stops the rate tracker.
func (s *Server) Shutdown(ctx context.Context) error {
	s.tracker.Stop()
	return s.httpSrv.Shutdown(ctx)
}

// limited wraps a handler with per-caller, per-route rate tracking.
func (s *Server) limited(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerIdentity(r)
		if !s.tracker.Allow(caller, route) {
			s.log.Warn("rate limit exceeded: caller=%s route=%s", caller, route)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.reader.ListSessions()
	if err != nil {
		s.log.Error("list sessions: %v", err)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleSession serves /api/sessions/{id}, /api/sessions/{id}/metrics, and
// /api/sessions/{id}/source.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	session, err := s.reader.Load(id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, session)
		return
	}

	switch parts[1] {
	case "metrics":
		theme := metrics.Theme(r.URL.Query().Get("theme"))
		if theme != metrics.ThemeDark {
			theme = metrics.ThemeLight
		}
		chart := metrics.BuildChart(metrics.Summarize(session), theme)
		writeJSON(w, http.StatusOK, chart)
	case "source":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(session.FinalSource()))
	default:
		http.Error(w, "unknown resource", http.StatusNotFound)
	}
}

// callerIdentity keys rate tracking by client IP, honoring the usual proxy
// header.
func callerIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
