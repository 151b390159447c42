// Command vibedbg-cli is a standalone client for vibedbg-host's pipe
// server, useful for exercising the extension from a terminal without the
// MCP server front-end.
package main

import "github.com/vibedbg/vibedbg-ext/cmd/vibedbg-cli/cmd"

func main() {
	cmd.Execute()
}
