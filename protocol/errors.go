package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrorCode identifies a transport or protocol failure class.
type ErrorCode int

const (
	// Connection errors (1000-1099)
	ErrorCodeConnectFailed ErrorCode = 1001
	ErrorCodeTimeout       ErrorCode = 1002
	ErrorCodeAuthFailed    ErrorCode = 1003
	ErrorCodeDisconnected  ErrorCode = 1005

	// Protocol errors (2000-2099)
	ErrorCodeProtocolError ErrorCode = 2001

	// Bridge errors (9000-9999)
	ErrorCodeExecBusy ErrorCode = 9001
)

// TransportError is a low-level failure with a structured code. The bridge
// translates these into domain errors before they reach the framework.
type TransportError struct {
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	IsRetryable bool           `json:"isRetryable"`
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if len(e.Details) > 0 {
		detailsJSON, _ := json.Marshal(e.Details)
		return fmt.Sprintf("[%d] %s (details: %s)", e.Code, e.Message, string(detailsJSON))
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewTransportError creates a transport error with retryability derived
// from the code.
func NewTransportError(code ErrorCode, message string, details map[string]any) *TransportError {
	return &TransportError{
		Code:        code,
		Message:     message,
		Details:     details,
		IsRetryable: retryableCode(code),
	}
}

func retryableCode(code ErrorCode) bool {
	switch code {
	case ErrorCodeTimeout, ErrorCodeExecBusy:
		return true
	default:
		return false
	}
}

// ConnectError creates a connection-establishment failure.
func ConnectError(message string, details map[string]any) *TransportError {
	return NewTransportError(ErrorCodeConnectFailed, message, details)
}

// TimeoutError creates a deadline-exceeded failure.
func TimeoutError(message string, details map[string]any) *TransportError {
	return NewTransportError(ErrorCodeTimeout, message, details)
}

// AuthError creates an authentication failure.
func AuthError(message string, details map[string]any) *TransportError {
	return NewTransportError(ErrorCodeAuthFailed, message, details)
}

// DisconnectedError creates a mid-protocol disconnect failure.
func DisconnectedError(message string, details map[string]any) *TransportError {
	return NewTransportError(ErrorCodeDisconnected, message, details)
}

// ProtoError creates a malformed-frame failure.
func ProtoError(message string, details map[string]any) *TransportError {
	return NewTransportError(ErrorCodeProtocolError, message, details)
}

// BusyError is returned when a second request is issued while one is still
// in flight on the same socket.
func BusyError() *TransportError {
	return NewTransportError(ErrorCodeExecBusy, "execution already in flight on this connection", nil)
}
