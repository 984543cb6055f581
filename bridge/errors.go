package bridge

import (
	"fmt"

	"github.com/lakefront-db/sparkbridge/protocol"
)

// ErrorType classifies bridge errors for handling decisions.
type ErrorType string

const (
	// ErrorTypeDatabase covers failures reported by the remote engine
	// itself, such as SQL errors or rejected inputs.
	ErrorTypeDatabase ErrorType = "database"

	// ErrorTypeConnection covers transport level failures: dial errors,
	// dropped sockets, bootstrap failures.
	ErrorTypeConnection ErrorType = "connection"

	// ErrorTypeTimeout covers deadline expiry while waiting on the remote.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeCancelled covers operations aborted by an explicit cancel.
	ErrorTypeCancelled ErrorType = "cancelled"

	// ErrorTypeState covers calls made against a connection in the wrong
	// state, such as executing on a closed handle.
	ErrorTypeState ErrorType = "state"
)

// BridgeError is the error type returned by all bridge operations.
type BridgeError struct {
	Type    ErrorType
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// IsType reports whether err is a BridgeError of the given type.
func IsType(err error, t ErrorType) bool {
	be, ok := err.(*BridgeError)
	return ok && be.Type == t
}

// ErrExecutionFailed builds the error for a rejected input, carrying the
// remote stdout verbatim when there is any.
func ErrExecutionFailed(stdout string) *BridgeError {
	if stdout == "" {
		return &BridgeError{
			Type:    ErrorTypeDatabase,
			Message: "Execution failed with no output",
		}
	}
	return &BridgeError{
		Type:    ErrorTypeDatabase,
		Message: fmt.Sprintf("Execution failed: %s", stdout),
	}
}

// ErrQueryFailed builds the error for a failed query. When the remote
// produced output it is carried verbatim together with the terminal state.
func ErrQueryFailed(state, stdout string) *BridgeError {
	if stdout == "" {
		return &BridgeError{
			Type:    ErrorTypeDatabase,
			Message: "Query failed with no output",
		}
	}
	return &BridgeError{
		Type:    ErrorTypeDatabase,
		Message: fmt.Sprintf("Query failed with status: %s", stdout),
		Details: state,
	}
}

// ErrDisconnected builds the error for a reply stream that ended without
// a terminal message.
func ErrDisconnected(cause error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeConnection,
		Message: "Disconnected",
		Cause:   cause,
	}
}

// ErrConnectFailed builds the error for a failed connection attempt.
func ErrConnectFailed(detail string, cause error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeConnection,
		Message: "connection failed",
		Details: detail,
		Cause:   cause,
	}
}

// ErrQueryTimeout builds the error for a query deadline expiring while
// the receive loop was still waiting on the remote.
func ErrQueryTimeout(detail string, cause error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeTimeout,
		Message: "query timed out waiting for remote engine",
		Details: detail,
		Cause:   cause,
	}
}

// ErrCancelled builds the error for an operation aborted by Cancel.
func ErrCancelled() *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeCancelled,
		Message: "operation cancelled",
	}
}

// ErrBusy builds the error for a second execution attempted while one is
// already in flight on the same connection. It wraps the transport-level
// busy error so callers can match on its code.
func ErrBusy() *BridgeError {
	cause := protocol.BusyError()
	return &BridgeError{
		Type:    ErrorTypeState,
		Message: cause.Message,
		Cause:   cause,
	}
}

// ErrClosed builds the error for operations on a closed connection.
func ErrClosed() *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeState,
		Message: "connection is closed",
	}
}
