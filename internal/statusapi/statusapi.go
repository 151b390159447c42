// Package statusapi exposes a loopback-only HTTP surface — health, stats,
// and Prometheus metrics — built on chi, matching this codebase's api
// package's router-registration style, and serving net/http.Server over a
// net.Listener the way claudews's wsServer binds one.
package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vibedbg/vibedbg-ext/internal/extension"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
	"github.com/vibedbg/vibedbg-ext/internal/protocol"
)

// Server hosts /healthz, /stats, and /metrics for one Controller.
type Server struct {
	controller *extension.Controller
	logger     logging.Logger

	ln  net.Listener
	srv *http.Server
}

// New builds a Server for controller with its routes registered. Serve
// binds the address (e.g. "127.0.0.1:9181") and opens the socket.
func New(controller *extension.Controller, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{controller: controller, logger: logger.With("statusapi")}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Handler: r}
	return s
}

// Serve binds addr and accepts requests until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status API listening", "addr", ln.Addr().String())
	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the server down immediately.
func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.controller.Initialized() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_initialized"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(s.controller.Stats().Uptime.Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.controller.Stats()
	snap := s.controller.SessionStore().Snapshot(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"engine":   stats.Engine,
		"pipe":     stats.Pipe,
		"protocol": protocol.SnapshotStats(),
		"session":  snap,
		"uptime":   stats.Uptime.String(),
	})
}
