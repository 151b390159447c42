package statusapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/extension"
	"github.com/vibedbg/vibedbg-ext/internal/simadapter"
)

func startTestServer(t *testing.T) (string, func()) {
	t.Helper()
	c := extension.Get()
	c.Shutdown()
	if err := c.Initialize(extension.DefaultConfig(), simadapter.New(), nil); err != nil {
		t.Fatalf("initialize controller: %v", err)
	}

	s := New(c, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ln := mustListen(t)
	addr := ln.Addr().String()
	ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, addr) }()
	time.Sleep(30 * time.Millisecond)

	return addr, func() {
		cancel()
		c.Shutdown()
	}
}

func TestHealthzReturnsOKWhenInitialized(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatsReturnsJSONWithEngineAndSession(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	resp, err := http.Get("http://" + addr + "/stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("unmarshal: %v, body=%s", err, body)
	}
	if _, ok := parsed["engine"]; !ok {
		t.Errorf("expected engine key in stats response, got %s", body)
	}
	if _, ok := parsed["session"]; !ok {
		t.Errorf("expected session key in stats response, got %s", body)
	}
}

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}
