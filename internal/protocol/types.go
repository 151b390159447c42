// Package protocol implements the wire envelope the pipe server and its
// clients exchange: a versioned JSON envelope terminated by a fixed
// delimiter, with four typed payloads (Command, Response, Error, Heartbeat).
package protocol

import "encoding/json"

// MessageType tags the payload carried by an Envelope.
type MessageType uint8

const (
	MessageTypeCommand   MessageType = 1
	MessageTypeResponse  MessageType = 2
	MessageTypeError     MessageType = 3
	MessageTypeHeartbeat MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeCommand:
		return "command"
	case MessageTypeResponse:
		return "response"
	case MessageTypeError:
		return "error"
	case MessageTypeHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// ErrorCode is the fixed taxonomy of wire-level and engine-level failures.
type ErrorCode uint32

const (
	ErrorCodeNone               ErrorCode = 0
	ErrorCodeInvalidMessage     ErrorCode = 1
	ErrorCodeCommandFailed      ErrorCode = 2
	ErrorCodeTimeout            ErrorCode = 3
	ErrorCodeConnectionLost     ErrorCode = 4
	ErrorCodeInvalidParameter   ErrorCode = 5
	ErrorCodeUnknownCommand     ErrorCode = 6
	ErrorCodeExtensionNotLoaded ErrorCode = 7
	ErrorCodeSymbolLoadError    ErrorCode = 8
	ErrorCodeMemoryAccessError  ErrorCode = 9
	ErrorCodeProcessNotFound    ErrorCode = 10
	ErrorCodeThreadError        ErrorCode = 11
	ErrorCodeInternalError      ErrorCode = 16
)

// ErrorCategory groups ErrorCode values for client-side handling.
type ErrorCategory uint8

const (
	ErrorCategoryUnknown       ErrorCategory = 0
	ErrorCategoryUserInput     ErrorCategory = 1
	ErrorCategorySystem        ErrorCategory = 2
	ErrorCategoryCommunication ErrorCategory = 3
	ErrorCategoryProcess       ErrorCategory = 4
	ErrorCategoryMemory        ErrorCategory = 5
	ErrorCategorySymbol        ErrorCategory = 6
	ErrorCategoryExtension     ErrorCategory = 7
	ErrorCategoryTimeout       ErrorCategory = 8
)

// ProtocolVersion is the only version this codec currently emits or accepts.
const ProtocolVersion uint32 = 1

// Delimiter terminates every message on the wire.
const Delimiter = "\r\n\r\n"

// MaxMessageSize bounds a single serialized message, delimiter included.
const MaxMessageSize = 1024 * 1024

// Envelope is the outer JSON object every message is wrapped in.
type Envelope struct {
	ProtocolVersion uint32          `json:"protocol_version"`
	MessageType     MessageType     `json:"message_type"`
	Payload         json.RawMessage `json:"payload"`
}

// CommandPayload is the type-1 payload: a request to run a debugger command.
type CommandPayload struct {
	RequestID  string         `json:"request_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	TimeoutMs  uint32         `json:"timeout_ms,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// ResponsePayload is the type-2 payload: the result of a CommandPayload.
type ResponsePayload struct {
	RequestID       string         `json:"request_id"`
	Success         bool           `json:"success"`
	Output          string         `json:"output"`
	ErrorMessage    string         `json:"error_message"`
	ExecutionTimeMs uint32         `json:"execution_time_ms"`
	SessionData     map[string]any `json:"session_data,omitempty"`
	Timestamp       int64          `json:"timestamp"`
}

// ErrorPayload is the type-3 payload: a protocol- or lifecycle-level failure
// not tied to a successfully-parsed command.
type ErrorPayload struct {
	RequestID    string         `json:"request_id,omitempty"`
	ErrorCode    ErrorCode      `json:"error_code"`
	Category     ErrorCategory  `json:"category"`
	ErrorMessage string         `json:"error_message"`
	Suggestion   string         `json:"suggestion"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    int64          `json:"timestamp"`
}

// HeartbeatPayload is the type-4 payload: a periodic liveness/session ping.
type HeartbeatPayload struct {
	SessionInfo map[string]any `json:"session_info,omitempty"`
	Timestamp   int64          `json:"timestamp"`
}

const (
	DefaultCommandTimeoutMs uint32 = 30_000
	MaxCommandLength        int    = 4096
)
