package protocol

// categoryTable maps every known ErrorCode to its fixed ErrorCategory.
var categoryTable = map[ErrorCode]ErrorCategory{
	ErrorCodeInvalidMessage:     ErrorCategorySystem,
	ErrorCodeCommandFailed:      ErrorCategorySystem,
	ErrorCodeTimeout:            ErrorCategoryTimeout,
	ErrorCodeConnectionLost:     ErrorCategoryCommunication,
	ErrorCodeInvalidParameter:   ErrorCategoryUserInput,
	ErrorCodeUnknownCommand:     ErrorCategoryUserInput,
	ErrorCodeExtensionNotLoaded: ErrorCategoryExtension,
	ErrorCodeSymbolLoadError:    ErrorCategorySymbol,
	ErrorCodeMemoryAccessError:  ErrorCategoryMemory,
	ErrorCodeProcessNotFound:    ErrorCategoryProcess,
	ErrorCodeThreadError:        ErrorCategoryProcess,
	ErrorCodeInternalError:      ErrorCategorySystem,
}

// suggestionTable maps every known ErrorCode to its fixed suggestion text.
// Codes without a specific entry fall back to defaultSuggestion.
var suggestionTable = map[ErrorCode]string{
	ErrorCodeInvalidMessage:     "Check message format and ensure it follows the protocol specification",
	ErrorCodeCommandFailed:      "Verify the command syntax and try again",
	ErrorCodeTimeout:            "Increase timeout value or check if the target is responsive",
	ErrorCodeExtensionNotLoaded: "Load the extension first using the connect command",
	ErrorCodeProcessNotFound:    "Ensure the target process is running and accessible",
	ErrorCodeMemoryAccessError:  "Check memory addresses and permissions",
}

const defaultSuggestion = "Check the logs for more detailed error information"

// ClassifyError returns the fixed category for code.
func ClassifyError(code ErrorCode) ErrorCategory {
	if cat, ok := categoryTable[code]; ok {
		return cat
	}
	return ErrorCategoryUnknown
}

// SuggestionFor returns the fixed suggestion text for code.
func SuggestionFor(code ErrorCode) string {
	if s, ok := suggestionTable[code]; ok {
		return s
	}
	return defaultSuggestion
}

// NewErrorPayload populates category and suggestion from the fixed tables.
func NewErrorPayload(requestID string, code ErrorCode, message string, details map[string]any, nowMs int64) ErrorPayload {
	return ErrorPayload{
		RequestID:    requestID,
		ErrorCode:    code,
		Category:     ClassifyError(code),
		ErrorMessage: message,
		Suggestion:   SuggestionFor(code),
		Details:      details,
		Timestamp:    nowMs,
	}
}

// CodecError is returned by every parse/serialize operation that fails
// because of a protocol-level problem (never because of an adapter or
// engine failure — those surface as payload fields, not Go errors).
type CodecError struct {
	Code    ErrorCode
	Message string
}

func (e *CodecError) Error() string {
	return e.Message
}

func newCodecError(message string) error {
	return &CodecError{Code: ErrorCodeInvalidMessage, Message: message}
}
