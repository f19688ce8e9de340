// Package probe is a tiny net/http readiness heartbeat: a Ready flag the
// supervisor flips once the subscriber loop is attached, served at
// /healthz for an orchestrator's liveness check and /readyz for its
// readiness check.
package probe

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/cognixio/chunker/pkg/mid"
)

// Server reports process liveness and readiness over HTTP.
type Server struct {
	ready atomic.Bool
	log   *slog.Logger
}

// New returns a Server that is live immediately but not yet ready.
func New() *Server {
	return &Server{log: slog.Default()}
}

// SetReady flips the readiness flag. Call once the work-queue subscriber
// is attached and fetching.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler serves /healthz (always 200 once the process is up) and /readyz
// (200 once SetReady(true) has been called, 503 otherwise), wrapped in the
// request-log and panic-recovery middleware every HTTP surface in this
// codebase uses.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return mid.Chain(mux, mid.Recover(s.log), mid.Logger(s.log))
}

// ListenAndServe starts the probe server on addr; intended to run in its
// own goroutine for the lifetime of the process.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}
