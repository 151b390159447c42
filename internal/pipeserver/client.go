package pipeserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/engine"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
	"github.com/vibedbg/vibedbg-ext/internal/protocol"
	"github.com/vibedbg/vibedbg-ext/internal/sessionstate"
)

const readChunkSize = 16 * 1024

// connCounter disambiguates connections accepted in the same millisecond.
var connCounter atomic.Int64

// ConnStats are one connection's cumulative transfer counters.
type ConnStats struct {
	ID           string
	ConnTime     time.Time
	MsgsRecv     int64
	MsgsSent     int64
	BytesRecv    int64
	BytesSent    int64
	LastActivity time.Time
}

// client owns one accepted connection's full read/dispatch/write lifecycle,
// mirroring the per-connection handler shape of this codebase's WebSocket
// provider: a read loop feeding a dispatcher, a mutex-guarded writer, and
// an idempotent close.
type client struct {
	id     string
	conn   net.Conn
	cfg    Config
	engine *engine.Engine
	store  *sessionstate.Store
	logger logging.Logger
	frames *atomic.Int64

	connTime     time.Time
	msgsRecv     atomic.Int64
	msgsSent     atomic.Int64
	bytesRecv    atomic.Int64
	bytesSent    atomic.Int64
	lastActivity atomic.Int64

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newClient(conn net.Conn, cfg Config, eng *engine.Engine, store *sessionstate.Store, logger logging.Logger, frames *atomic.Int64) *client {
	if logger == nil {
		logger = logging.Nop()
	}
	now := time.Now()
	c := &client{
		id:       fmt.Sprintf("%d-%d", now.UnixMilli(), connCounter.Add(1)),
		conn:     conn,
		cfg:      cfg,
		engine:   eng,
		store:    store,
		logger:   logger,
		frames:   frames,
		connTime: now,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

// Stats snapshots the connection's counters.
func (c *client) Stats() ConnStats {
	return ConnStats{
		ID:           c.id,
		ConnTime:     c.connTime,
		MsgsRecv:     c.msgsRecv.Load(),
		MsgsSent:     c.msgsSent.Load(),
		BytesRecv:    c.bytesRecv.Load(),
		BytesSent:    c.bytesSent.Load(),
		LastActivity: time.Unix(0, c.lastActivity.Load()),
	}
}

func (c *client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *client) run(ctx context.Context) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.heartbeatLoop(connCtx)

	defer func() {
		stats := c.Stats()
		c.logger.Debug("connection closed", "conn_id", c.id,
			"msgs_recv", stats.MsgsRecv, "msgs_sent", stats.MsgsSent,
			"bytes_recv", stats.BytesRecv, "bytes_sent", stats.BytesSent)
	}()

	var pending []byte
	buf := make([]byte, readChunkSize)
	for {
		if c.cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.bytesRecv.Add(int64(n))
			c.touch()
			pending = append(pending, buf[:n]...)
			pending = c.drainFrames(connCtx, pending)
			if len(pending) > protocol.MaxMessageSize {
				// No delimiter found within an already-oversized buffer:
				// enforce the size limit here, before any parse buffer is
				// allocated, and drop the connection.
				c.writeError(protocol.NewErrorPayload("", protocol.ErrorCodeInvalidMessage, "message exceeds maximum size before delimiter", nil, nowMs()))
				return
			}
		}
		if err != nil {
			// An idle read window is not a dead connection; keep polling.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if connCtx.Err() != nil || c.closed.Load() {
					return
				}
				continue
			}
			if err != io.EOF {
				c.logger.Debug("connection read error", "error", err)
			}
			return
		}
	}
}

// drainFrames extracts and dispatches every complete message currently in
// pending, returning the unconsumed remainder. The read cursor advances
// past each parsed delimiter; the tail is retained for the next read.
// Each dispatched frame keeps its trailing delimiter, which the protocol
// parse functions require.
func (c *client) drainFrames(ctx context.Context, pending []byte) []byte {
	for {
		_, consumed, ok := protocol.NextFrame(pending)
		if !ok {
			return pending
		}
		frame := pending[:consumed]
		pending = pending[consumed:]
		c.frames.Add(1)
		c.msgsRecv.Add(1)
		c.dispatch(ctx, frame)
	}
}

func (c *client) dispatch(ctx context.Context, msg []byte) {
	if !protocol.ValidateMessageSize(len(msg)) {
		c.writeError(protocol.NewErrorPayload("", protocol.ErrorCodeInvalidMessage, "message exceeds maximum size", nil, nowMs()))
		return
	}

	msgType, err := protocol.PeekMessageType(msg)
	if err != nil {
		c.writeError(protocol.NewErrorPayload("", protocol.ErrorCodeInvalidMessage, err.Error(), nil, nowMs()))
		return
	}

	switch msgType {
	case protocol.MessageTypeCommand:
		c.handleCommand(ctx, msg)
	case protocol.MessageTypeHeartbeat:
		// Client heartbeats are liveness-only; no response required.
	default:
		c.writeError(protocol.NewErrorPayload("", protocol.ErrorCodeInvalidMessage, "unexpected message type from client", nil, nowMs()))
	}
}

func (c *client) handleCommand(ctx context.Context, msg []byte) {
	cmd, err := protocol.ParseCommand(msg)
	if err != nil {
		c.writeError(protocol.NewErrorPayload("", protocol.ErrorCodeInvalidMessage, err.Error(), nil, nowMs()))
		return
	}

	timeout := time.Duration(cmd.TimeoutMs) * time.Millisecond
	res, err := c.engine.ExecuteSync(ctx, cmd.Command, timeout)
	if err != nil {
		c.writeError(protocol.NewErrorPayload(cmd.RequestID, protocol.ErrorCodeTimeout, err.Error(), nil, nowMs()))
		return
	}

	resp := protocol.ResponsePayload{
		RequestID:       cmd.RequestID,
		Success:         res.Success,
		Output:          res.Output,
		ErrorMessage:    res.ErrorMessage,
		ExecutionTimeMs: uint32(res.DurationMs),
		SessionData:     c.sessionData(ctx),
		Timestamp:       nowMs(),
	}
	c.writeResponse(resp)
}

// sessionData snapshots the process/thread info a response may carry.
func (c *client) sessionData(ctx context.Context) map[string]any {
	snap := c.store.Snapshot(ctx)
	data := map[string]any{
		"connected":      snap.Connected,
		"target_running": snap.TargetRunning,
	}
	if snap.CurrentProcess != nil {
		data["process_id"] = snap.CurrentProcess.PID
		data["process_name"] = snap.CurrentProcess.Name
	}
	if snap.CurrentThread != nil {
		data["thread_id"] = snap.CurrentThread.TID
	}
	return data
}

func (c *client) heartbeatLoop(ctx context.Context) {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	t := time.NewTicker(c.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap := c.store.Snapshot(ctx)
			hb := protocol.HeartbeatPayload{
				SessionInfo: map[string]any{
					"connected":      snap.Connected,
					"target_running": snap.TargetRunning,
				},
				Timestamp: nowMs(),
			}
			data, err := protocol.SerializeHeartbeat(hb)
			if err != nil {
				continue
			}
			c.write(data)
		}
	}
}

func (c *client) writeResponse(resp protocol.ResponsePayload) {
	data, err := protocol.SerializeResponse(resp)
	if err != nil {
		c.logger.Error("failed to serialize response", err)
		return
	}
	c.write(data)
}

func (c *client) writeError(e protocol.ErrorPayload) {
	data, err := protocol.SerializeError(e)
	if err != nil {
		c.logger.Error("failed to serialize error payload", err)
		return
	}
	c.write(data)
}

func (c *client) write(data []byte) {
	if c.closed.Load() {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err := c.conn.Write(data); err != nil {
		c.closed.Store(true)
		return
	}
	c.msgsSent.Add(1)
	c.bytesSent.Add(int64(len(data)))
	c.touch()
}

func nowMs() int64 { return time.Now().UnixMilli() }
