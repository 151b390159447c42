package extension

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/adapter"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
)

// This file is the host-command surface: the six operations the debugger
// UI invokes through the host's extension mechanism. A native export shim
// calls these with the host's debugger binding; cmd/vibedbg-host calls
// them with the simulated one. Each returns the text the host should
// print.

// Connect initializes the extension against debugger and starts serving
// pipe clients on a background goroutine.
func Connect(ctx context.Context, cfg Config, debugger adapter.Debugger, logger logging.Logger) (string, error) {
	c := Get()
	if c.Initialized() {
		return "Already connected.\n", nil
	}
	if err := c.Initialize(cfg, debugger, logger); err != nil {
		return "", err
	}
	go func() { _ = c.Serve(ctx) }()

	// Give the listener a moment to bind so a status call right after
	// connect reports the endpoint.
	deadline := time.Now().Add(time.Second)
	for c.PipeAddr() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if addr := c.PipeAddr(); addr != nil {
		return fmt.Sprintf("Connected. Listening on %s.\n", addr), nil
	}
	return "Connected. Listener starting.\n", nil
}

// Disconnect tears the extension down. Safe to call when not connected.
func Disconnect() string {
	c := Get()
	if !c.Initialized() {
		return "Not connected.\n"
	}
	c.Shutdown()
	return "Disconnected.\n"
}

// Status reports connection state and aggregate statistics.
func Status() string {
	c := Get()
	if !c.Initialized() {
		return "Status: not connected.\n"
	}
	stats := c.Stats()
	var b strings.Builder
	b.WriteString("Status: connected\n")
	if addr := c.PipeAddr(); addr != nil {
		fmt.Fprintf(&b, "  endpoint:        %s\n", addr)
	}
	fmt.Fprintf(&b, "  uptime:          %s\n", stats.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "  connections:     %d accepted, %d active\n", stats.Pipe.Accepted, stats.Pipe.Active)
	fmt.Fprintf(&b, "  commands:        %d executed, %d succeeded, %d failed\n",
		stats.Engine.Executed, stats.Engine.Succeeded, stats.Engine.Failed)
	return b.String()
}

// ExecuteCommand runs one free-form command through the engine and returns
// the captured text, the way the host's execute command surfaces output
// through its print callback.
func ExecuteCommand(ctx context.Context, command string) string {
	c := Get()
	eng := c.Engine()
	if eng == nil || !c.Initialized() {
		return "Error: not connected. Run connect first.\n"
	}
	res, err := eng.ExecuteSync(ctx, command, 0)
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	if !res.Success {
		return fmt.Sprintf("Error: %s\n", res.ErrorMessage)
	}
	return res.Output
}

// ExtensionVersion is the version string the host's version command prints.
const ExtensionVersion = "1.0.0"

// Version returns the version banner.
func Version() string {
	return fmt.Sprintf("vibedbg extension v%s\n", ExtensionVersion)
}

// Help returns the usage text for the six host commands.
func Help() string {
	return `vibedbg extension commands:
  !connect               Start the pipe server and accept assistant clients
  !disconnect            Stop the pipe server and release the debugger
  !status                Show connection state and statistics
  !execute <command>     Run a debugger command through the engine
  !version               Show the extension version
  !help                  Show this text
`
}
