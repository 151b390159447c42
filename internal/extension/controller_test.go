package extension

import (
	"testing"

	"github.com/vibedbg/vibedbg-ext/internal/simadapter"
)

// resetForTest clears process-wide singleton state between test cases,
// since Controller is a singleton by design.
func resetForTest(t *testing.T) *Controller {
	t.Helper()
	c := Get()
	c.Shutdown()
	c.mu.Lock()
	c.initialized = false
	c.mu.Unlock()
	return c
}

func TestInitializeIsIdempotent(t *testing.T) {
	c := resetForTest(t)
	t.Cleanup(c.Shutdown)

	if err := c.Initialize(DefaultConfig(), simadapter.New(), nil); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	engineBefore := c.Engine()
	if err := c.Initialize(DefaultConfig(), simadapter.New(), nil); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if c.Engine() != engineBefore {
		t.Error("expected second Initialize to be a no-op, got a rewired engine")
	}
}

func TestInitializeRequiresDebugger(t *testing.T) {
	c := resetForTest(t)
	if err := c.Initialize(DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error for nil debugger")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	c := resetForTest(t)
	if err := c.Initialize(DefaultConfig(), simadapter.New(), nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	c.Shutdown()
	c.Shutdown()
	if c.Initialized() {
		t.Fatal("expected not initialized after shutdown")
	}
}

func TestStatsAggregatesEngineAndPipe(t *testing.T) {
	c := resetForTest(t)
	t.Cleanup(c.Shutdown)
	if err := c.Initialize(DefaultConfig(), simadapter.New(), nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	stats := c.Stats()
	if stats.Engine.Executed != 0 {
		t.Errorf("expected zero executed commands before use, got %d", stats.Engine.Executed)
	}
}
