//go:build !windows

package pipeserver

import "net"

func dialTestServer(s *Server) (net.Conn, error) {
	return net.Dial("tcp", s.Addr().String())
}
