package pipeserver

import (
	"context"
	"testing"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/engine"
	"github.com/vibedbg/vibedbg-ext/internal/protocol"
	"github.com/vibedbg/vibedbg-ext/internal/router"
	"github.com/vibedbg/vibedbg-ext/internal/sessionstate"
	"github.com/vibedbg/vibedbg-ext/internal/simadapter"
)

func newTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	sim := simadapter.New()
	store := sessionstate.New(sim, nil)
	eng := engine.New(engine.DefaultConfig(), sim, router.Default(), store, nil)
	eng.Start()
	t.Cleanup(eng.Stop)

	cfg := DefaultConfig()
	cfg.PipePath = `\\.\pipe\vibedbg_test`
	cfg.MaxInstances = 2
	s := New(cfg, eng, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()
	t.Cleanup(func() { cancel(); s.Close() })
	time.Sleep(20 * time.Millisecond)
	return s, cancel
}

func TestServerAcceptsAndRoundTripsCommand(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	conn, err := dialTestServer(s)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame, _ := protocol.SerializeCommand(protocol.CommandPayload{RequestID: "x1", Command: "lm"})
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp, err := protocol.ParseResponse(buf[:n])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.RequestID != "x1" || !resp.Success {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// Close must join every per-connection worker and leave the connection
// set empty, even while a client is still connected.
func TestServerCloseJoinsWorkersAndClearsConnections(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	conn, err := dialTestServer(s)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := s.SnapshotStats().Active; got != 0 {
		t.Fatalf("expected 0 active connections after Close, got %d", got)
	}
	s.connsMu.Lock()
	remaining := len(s.conns)
	s.connsMu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected empty connection set after Close, got %d", remaining)
	}
}

func TestServerRejectsBeyondMaxInstances(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	var conns []interface{ Close() error }
	for i := 0; i < 2; i++ {
		conn, err := dialTestServer(s)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	stats := s.SnapshotStats()
	if stats.Active != 2 {
		t.Fatalf("expected 2 active connections, got %d", stats.Active)
	}

	extra, err := dialTestServer(s)
	if err != nil {
		t.Fatalf("dial beyond max: %v", err)
	}
	defer extra.Close()
	time.Sleep(50 * time.Millisecond)
	stats = s.SnapshotStats()
	if stats.Rejected != 1 || stats.Active != 2 {
		t.Fatalf("expected the third connection rejected with 2 still active, got %+v", stats)
	}
}
