package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NewRequestID returns a unique opaque request identifier, the same
// hyphenated 36-character hex layout the original extension emits.
func NewRequestID() string {
	return uuid.New().String()
}

// validateCommandPayload enforces the Command payload invariants:
// request_id required, command required and at most 4096 bytes after
// trim, timeout defaulted when zero.
func validateCommandPayload(p *CommandPayload) error {
	if p.RequestID == "" {
		return newCodecError("command payload missing request_id")
	}
	trimmed := trimSpaceBytes(p.Command)
	if trimmed == "" {
		return newCodecError("command payload missing command text")
	}
	if len(trimmed) > MaxCommandLength {
		return newCodecError(fmt.Sprintf("command exceeds %d bytes after trim", MaxCommandLength))
	}
	if p.TimeoutMs == 0 {
		p.TimeoutMs = DefaultCommandTimeoutMs
	}
	return nil
}

func trimSpaceBytes(s string) string {
	start, end := 0, len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// validateResponsePayload enforces success/error_message exclusivity.
func validateResponsePayload(p *ResponsePayload) error {
	if p.RequestID == "" {
		return newCodecError("response payload missing request_id")
	}
	if p.Success && p.ErrorMessage != "" {
		return newCodecError("response marked success but carries an error_message")
	}
	if !p.Success && p.ErrorMessage == "" {
		return newCodecError("response marked failure but error_message is empty")
	}
	return nil
}

// --- Serialization -----------------------------------------------------

func serializeEnvelope(msgType MessageType, payload any) ([]byte, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, newCodecError("failed to marshal payload: " + err.Error())
	}
	env := Envelope{
		ProtocolVersion: ProtocolVersion,
		MessageType:     msgType,
		Payload:         rawPayload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, newCodecError("failed to marshal envelope: " + err.Error())
	}
	out := make([]byte, 0, len(body)+len(Delimiter))
	out = append(out, body...)
	out = append(out, Delimiter...)
	if len(out) > MaxMessageSize {
		return nil, &CodecError{Code: ErrorCodeInvalidMessage, Message: "serialized message exceeds maximum size"}
	}
	messagesSerialized.Add(1)
	return out, nil
}

// SerializeCommand encodes a CommandPayload as a type-1 envelope.
func SerializeCommand(p CommandPayload) ([]byte, error) {
	if err := validateCommandPayload(&p); err != nil {
		return nil, err
	}
	return serializeEnvelope(MessageTypeCommand, p)
}

// SerializeResponse encodes a ResponsePayload as a type-2 envelope.
func SerializeResponse(p ResponsePayload) ([]byte, error) {
	if err := validateResponsePayload(&p); err != nil {
		return nil, err
	}
	return serializeEnvelope(MessageTypeResponse, p)
}

// SerializeError encodes an ErrorPayload as a type-3 envelope.
func SerializeError(p ErrorPayload) ([]byte, error) {
	return serializeEnvelope(MessageTypeError, p)
}

// SerializeHeartbeat encodes a HeartbeatPayload as a type-4 envelope.
func SerializeHeartbeat(p HeartbeatPayload) ([]byte, error) {
	return serializeEnvelope(MessageTypeHeartbeat, p)
}

// --- Parsing -------------------------------------------------------------

// ValidateMessageSize reports whether size falls within (0, MaxMessageSize].
// pipeserver calls this on the receive path before allocating a parse
// buffer, so the bound holds even when the codec is never reached.
func ValidateMessageSize(size int) bool {
	return size > 0 && size <= MaxMessageSize
}

// splitDelimited trims data at the first occurrence of Delimiter and returns
// the JSON object preceding it. It does not validate size.
func splitDelimited(data []byte) ([]byte, error) {
	idx := bytes.Index(data, []byte(Delimiter))
	if idx < 0 {
		return nil, newCodecError("message does not end with the protocol delimiter")
	}
	return data[:idx], nil
}

func parseEnvelope(data []byte, want MessageType) (Envelope, error) {
	env, err := parseEnvelopeInner(data, want)
	if err != nil {
		parseErrors.Add(1)
		return Envelope{}, err
	}
	messagesParsed.Add(1)
	bytesParsed.Add(int64(len(data)))
	return env, nil
}

func parseEnvelopeInner(data []byte, want MessageType) (Envelope, error) {
	if !ValidateMessageSize(len(data)) {
		return Envelope{}, &CodecError{Code: ErrorCodeInvalidMessage, Message: "message size out of bounds"}
	}
	body, err := splitDelimited(data)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, newCodecError("malformed JSON envelope: " + err.Error())
	}
	if env.ProtocolVersion == 0 {
		return Envelope{}, newCodecError("envelope missing protocol_version")
	}
	if env.MessageType != want {
		return Envelope{}, newCodecError(fmt.Sprintf("expected message_type %d, got %d", want, env.MessageType))
	}
	if len(env.Payload) == 0 {
		return Envelope{}, newCodecError("envelope missing payload")
	}
	return env, nil
}

// ParseCommand parses a type-1 message. data may include trailing bytes
// after the delimiter; only the leading message is consumed.
func ParseCommand(data []byte) (CommandPayload, error) {
	env, err := parseEnvelope(data, MessageTypeCommand)
	if err != nil {
		return CommandPayload{}, err
	}
	var p CommandPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return CommandPayload{}, newCodecError("malformed command payload: " + err.Error())
	}
	if err := validateCommandPayload(&p); err != nil {
		return CommandPayload{}, err
	}
	return p, nil
}

// ParseResponse parses a type-2 message.
func ParseResponse(data []byte) (ResponsePayload, error) {
	env, err := parseEnvelope(data, MessageTypeResponse)
	if err != nil {
		return ResponsePayload{}, err
	}
	var p ResponsePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return ResponsePayload{}, newCodecError("malformed response payload: " + err.Error())
	}
	if err := validateResponsePayload(&p); err != nil {
		return ResponsePayload{}, err
	}
	return p, nil
}

// ParseError parses a type-3 message.
func ParseError(data []byte) (ErrorPayload, error) {
	env, err := parseEnvelope(data, MessageTypeError)
	if err != nil {
		return ErrorPayload{}, err
	}
	var p ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return ErrorPayload{}, newCodecError("malformed error payload: " + err.Error())
	}
	return p, nil
}

// ParseHeartbeat parses a type-4 message.
func ParseHeartbeat(data []byte) (HeartbeatPayload, error) {
	env, err := parseEnvelope(data, MessageTypeHeartbeat)
	if err != nil {
		return HeartbeatPayload{}, err
	}
	var p HeartbeatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return HeartbeatPayload{}, newCodecError("malformed heartbeat payload: " + err.Error())
	}
	return p, nil
}

// PeekMessageType inspects data without fully validating the payload, used
// by the pipe server to route a fully-buffered message before dispatch.
func PeekMessageType(data []byte) (MessageType, error) {
	body, err := splitDelimited(data)
	if err != nil {
		return 0, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, newCodecError("malformed JSON envelope: " + err.Error())
	}
	return env.MessageType, nil
}
