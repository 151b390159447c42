//go:build windows

package pipeserver

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func dialTestServer(s *Server) (net.Conn, error) {
	return winio.DialPipeContext(context.Background(), s.cfg.PipePath)
}
