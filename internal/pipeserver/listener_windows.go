//go:build windows

package pipeserver

import (
	"github.com/Microsoft/go-winio"
)

// newListener opens a Windows named pipe at path, matching the original
// extension's \\.\pipe\vibedbg_debug transport. go-winio accepts
// InputBufferSize/OutputBufferSize analogous to the source's
// PIPE_BUFFER_SIZE and internally cycles pipe instances as clients
// connect and disconnect, up to MessageCount.
func newListener(cfg Config) (netListener, error) {
	pc := &winio.PipeConfig{
		InputBufferSize:    pipeBufferSize,
		OutputBufferSize:   pipeBufferSize,
		MessageMode:        false,
		SecurityDescriptor: "",
	}
	ln, err := winio.ListenPipe(cfg.PipePath, pc)
	if err != nil {
		return nil, err
	}
	return ln, nil
}
