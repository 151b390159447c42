// Package extension implements the singleton extension controller:
// ordered initialization of every component below it and
// inverse-order teardown, mirroring the host debugger's expectation of a
// single load/unload lifecycle per process.
package extension

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/adapter"
	"github.com/vibedbg/vibedbg-ext/internal/engine"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
	"github.com/vibedbg/vibedbg-ext/internal/pipeserver"
	"github.com/vibedbg/vibedbg-ext/internal/router"
	"github.com/vibedbg/vibedbg-ext/internal/sessionstate"
)

// Config bundles the sub-component configs the controller wires together.
type Config struct {
	Engine engine.Config
	Pipe   pipeserver.Config
}

// DefaultConfig returns the engine and pipe server defaults.
func DefaultConfig() Config {
	return Config{Engine: engine.DefaultConfig(), Pipe: pipeserver.DefaultConfig()}
}

// AggregateStats rolls up engine and pipe server counters for the status
// API and the status host command.
type AggregateStats struct {
	Engine engine.Stats
	Pipe   pipeserver.Stats
	Uptime time.Duration
}

// Controller owns the debugger adapter, session state, command engine, and
// pipe server, and is the single object that decides load order.
type Controller struct {
	mu          sync.Mutex
	initialized bool
	initTime    time.Time

	logger   logging.Logger
	debugger adapter.Debugger
	store    *sessionstate.Store
	table    *router.Table
	eng      *engine.Engine
	server   *pipeserver.Server
}

var (
	instance     *Controller
	instanceOnce sync.Once
)

// Get returns the process-wide Controller singleton.
func Get() *Controller {
	instanceOnce.Do(func() { instance = &Controller{} })
	return instance
}

// Initialize wires debugger through session state, the router table, and
// the command engine, then constructs (but does not start) the pipe
// server. It is idempotent: a second call while already initialized is a
// no-op, matching the original extension's DllMain being invoked once per
// load and never re-entered.
//
// Init order: adapter -> sessionstate -> router -> engine -> pipeserver.
func (c *Controller) Initialize(cfg Config, debugger adapter.Debugger, logger logging.Logger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if debugger == nil {
		return fmt.Errorf("extension: debugger adapter is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	c.logger = logger.With("extension")
	c.debugger = adapter.Serialize(debugger)
	c.store = sessionstate.New(c.debugger, logger)
	c.table = router.Default()
	c.eng = engine.New(cfg.Engine, c.debugger, c.table, c.store, logger)
	c.eng.Start()
	c.server = pipeserver.New(cfg.Pipe, c.eng, c.store, logger)

	c.initialized = true
	c.initTime = time.Now()
	c.logger.Info("extension initialized")
	return nil
}

// Serve blocks accepting pipe clients until ctx is canceled. Initialize
// must have been called first.
func (c *Controller) Serve(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.mu.Unlock()
	if server == nil {
		return fmt.Errorf("extension: not initialized")
	}
	return server.Serve(ctx)
}

// Shutdown tears components down in the inverse of Initialize's order:
// pipeserver -> engine -> (session state and adapter need no explicit
// teardown; they hold no OS resources of their own).
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return
	}
	if c.server != nil {
		_ = c.server.Close()
	}
	if c.eng != nil {
		c.eng.Stop()
	}
	c.initialized = false
	c.logger.Info("extension shut down")
}

// Engine returns the underlying command engine for callers (the status API,
// the CLI-facing router) that need direct access after Initialize.
func (c *Controller) Engine() *engine.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eng
}

// PipeAddr returns the pipe server's bound address, or nil before Serve
// has opened the listener.
func (c *Controller) PipeAddr() net.Addr {
	c.mu.Lock()
	server := c.server
	c.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Addr()
}

// SessionStore returns the underlying session state store.
func (c *Controller) SessionStore() *sessionstate.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Stats aggregates engine and pipe server counters.
func (c *Controller) Stats() AggregateStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var agg AggregateStats
	if c.eng != nil {
		agg.Engine = c.eng.SnapshotStats()
	}
	if c.server != nil {
		agg.Pipe = c.server.SnapshotStats()
	}
	if !c.initTime.IsZero() {
		agg.Uptime = time.Since(c.initTime)
	}
	return agg
}

// Initialized reports whether Initialize has completed successfully.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}
