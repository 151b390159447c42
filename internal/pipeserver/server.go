// Package pipeserver implements the multi-instance IPC listener: one
// goroutine per connected client, delimiter-framed JSON messages via
// internal/protocol, and a bounded number of concurrent clients.
package pipeserver

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/engine"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
	"github.com/vibedbg/vibedbg-ext/internal/metrics"
	"github.com/vibedbg/vibedbg-ext/internal/sessionstate"
)

// netListener is the subset of net.Listener the server needs; go-winio's
// pipe listener and net.Listen's TCP listener both satisfy it without
// modification.
type netListener interface {
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

const (
	pipeBufferSize      = 64 * 1024
	defaultMaxInstances = 10

	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
)

// Config controls the pipe path, concurrency bound, and per-connection
// timing.
type Config struct {
	PipePath     string
	MaxInstances int
	// TCPFallbackAddr is the loopback address the non-Windows listener
	// binds instead of a named pipe. Empty means an ephemeral port.
	TCPFallbackAddr string
	// ReadTimeout bounds a single blocking read on a connection. A read
	// that times out with no data is not an error; the worker keeps
	// polling.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single response or heartbeat write; a write
	// that cannot complete in time closes the connection.
	WriteTimeout time.Duration
	// HeartbeatInterval spaces the server's liveness pings. Zero or
	// negative disables them.
	HeartbeatInterval time.Duration
}

// DefaultConfig is a pipe at \\.\pipe\vibedbg_debug admitting up to 10
// concurrent client connections, with a 30 s read timeout, a 5 s write
// timeout, and 15 s heartbeats.
func DefaultConfig() Config {
	return Config{
		PipePath:          `\\.\pipe\vibedbg_debug`,
		MaxInstances:      defaultMaxInstances,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		HeartbeatInterval: defaultHeartbeatInterval,
	}
}

// Stats are cumulative connection counters.
type Stats struct {
	Accepted      int64
	Active        int64
	Rejected      int64
	FramesHandled int64
}

// Server accepts clients on a platform listener and dispatches each
// client's commands to a shared engine.Engine and sessionstate.Store.
type Server struct {
	cfg    Config
	engine *engine.Engine
	store  *sessionstate.Store
	logger logging.Logger

	lnMu sync.Mutex
	ln   netListener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	sem chan struct{}
	wg  sync.WaitGroup

	accepted, active, rejected, frames atomic.Int64
}

// New constructs a Server. Serve opens the underlying listener.
func New(cfg Config, eng *engine.Engine, store *sessionstate.Store, logger logging.Logger) *Server {
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = defaultMaxInstances
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		cfg:    cfg,
		engine: eng,
		store:  store,
		logger: logger.With("pipeserver"),
		conns:  map[net.Conn]struct{}{},
		sem:    make(chan struct{}, cfg.MaxInstances),
	}
}

// Serve opens the listener and accepts connections until ctx is canceled
// or the listener errors. It blocks until the accept loop exits.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := newListener(s.cfg)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	s.logger.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				s.logger.Warn("accept failed", "error", err)
				return err
			}
		}
		s.accepted.Add(1)
		metrics.Get().PipeConnectionsAccepted.Inc()
		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

// Close stops accepting, closes every live connection to unblock its
// worker's read, and joins all workers. Idempotent.
func (s *Server) Close() error {
	s.lnMu.Lock()
	ln := s.ln
	s.lnMu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the listener's bound address, or nil before Serve has
// opened it. Clients on non-Windows hosts dial this, since the TCP
// fallback usually binds an ephemeral port.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		s.rejected.Add(1)
		metrics.Get().PipeConnectionsRejected.Inc()
		s.logger.Warn("rejecting connection: max instances reached")
		return
	}

	s.active.Add(1)
	metrics.Get().PipeConnectionsActive.Inc()
	defer func() {
		s.active.Add(-1)
		metrics.Get().PipeConnectionsActive.Dec()
	}()

	c := newClient(conn, s.cfg, s.engine, s.store, s.logger, &s.frames)
	c.run(ctx)
}

// SnapshotStats returns a consistent copy of the cumulative counters.
func (s *Server) SnapshotStats() Stats {
	return Stats{
		Accepted:      s.accepted.Load(),
		Active:        s.active.Load(),
		Rejected:      s.rejected.Load(),
		FramesHandled: s.frames.Load(),
	}
}
