//go:build windows

package cmd

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func dial(ctx context.Context) (net.Conn, error) {
	if tcpAddr != "" {
		return net.Dial("tcp", tcpAddr)
	}
	return winio.DialPipeContext(ctx, pipePath)
}
