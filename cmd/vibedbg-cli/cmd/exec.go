package cmd

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vibedbg/vibedbg-ext/internal/protocol"
)

var execCmd = &cobra.Command{
	Use:   "exec <command...>",
	Short: "Run a single debugger command and print its response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		conn, err := dial(ctx)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		command := strings.Join(args, " ")
		resp, err := sendCommand(conn, command, timeout)
		if err != nil {
			return err
		}
		printResponse(resp)
		return nil
	},
}

func sendCommand(conn net.Conn, command string, timeoutMs uint32) (protocol.ResponsePayload, error) {
	reqID := protocol.NewRequestID()
	frame, err := protocol.SerializeCommand(protocol.CommandPayload{
		RequestID: reqID,
		Command:   command,
		TimeoutMs: timeoutMs,
	})
	if err != nil {
		return protocol.ResponsePayload{}, fmt.Errorf("serialize command: %w", err)
	}
	if _, err := conn.Write(frame); err != nil {
		return protocol.ResponsePayload{}, fmt.Errorf("write: %w", err)
	}

	// Accumulate framed messages, skipping server heartbeats, until a
	// response or error arrives.
	var pending []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}
		for {
			body, consumed, ok := protocol.NextFrame(pending)
			if !ok {
				break
			}
			pending = pending[consumed:]
			msg := append(append([]byte{}, body...), protocol.Delimiter...)

			msgType, err := protocol.PeekMessageType(msg)
			if err != nil {
				return protocol.ResponsePayload{}, err
			}
			switch msgType {
			case protocol.MessageTypeResponse:
				return protocol.ParseResponse(msg)
			case protocol.MessageTypeError:
				errPayload, perr := protocol.ParseError(msg)
				if perr != nil {
					return protocol.ResponsePayload{}, perr
				}
				return protocol.ResponsePayload{}, fmt.Errorf("server error [%d]: %s (%s)", errPayload.ErrorCode, errPayload.ErrorMessage, errPayload.Suggestion)
			case protocol.MessageTypeHeartbeat:
				log.Debug().Msg("heartbeat from server")
			default:
				return protocol.ResponsePayload{}, fmt.Errorf("unexpected message type %v from server", msgType)
			}
		}
		if err != nil {
			return protocol.ResponsePayload{}, fmt.Errorf("read: %w", err)
		}
	}
}

func printResponse(resp protocol.ResponsePayload) {
	if resp.Success {
		fmt.Print(resp.Output)
		return
	}
	log.Error().Str("request_id", resp.RequestID).Msg(resp.ErrorMessage)
}
