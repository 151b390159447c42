package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one command per line from a file (or stdin with -) sequentially",
	RunE: func(cmd *cobra.Command, args []string) error {
		var f *os.File
		if batchFile == "" || batchFile == "-" {
			f = os.Stdin
		} else {
			var err error
			f, err = os.Open(batchFile)
			if err != nil {
				return fmt.Errorf("open %s: %w", batchFile, err)
			}
			defer f.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		conn, err := dial(ctx)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			resp, err := sendCommand(conn, line, timeout)
			if err != nil {
				fmt.Fprintf(os.Stderr, "command %q failed: %v\n", line, err)
				continue
			}
			printResponse(resp)
		}
		return scanner.Err()
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "-", "File of newline-separated commands, or - for stdin")
}
