// Package cmd implements the vibedbg-cli cobra command tree: a thin pipe
// client for talking to a running vibedbg-host, in the style of this
// codebase's other cobra-based CLI entry points.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	pipePath string
	tcpAddr  string
	timeout  uint32
	verbose  bool
)

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:   "vibedbg-cli",
	Short: "Client for the vibedbg debugger pipe server",
	Long: `vibedbg-cli connects to a running vibedbg-host over its named pipe
(or, off Windows, the loopback TCP fallback it falls back to) and sends
debugger commands framed per the vibedbg wire protocol.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

// Execute runs the command tree.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&pipePath, "pipe", `\\.\pipe\vibedbg_debug`, "Named pipe path (Windows)")
	RootCmd.PersistentFlags().StringVar(&tcpAddr, "addr", os.Getenv("VIBEDBG_CLI_ADDR"), "TCP fallback address (non-Windows dev mode)")
	RootCmd.PersistentFlags().Uint32Var(&timeout, "timeout-ms", 30000, "Command timeout in milliseconds")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	RootCmd.AddCommand(execCmd)
	RootCmd.AddCommand(batchCmd)
}
