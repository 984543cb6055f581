// Package transport defines the message-oriented transport abstraction the
// execution bridge drives.
package transport

import "context"

// Transport is a persistent duplex channel carrying one message per call.
// An implementation owns exactly one underlying socket. The channel is a
// strict request/response-stream pipe: callers must not interleave
// requests, and the bridge above enforces single-flight discipline.
type Transport interface {
	// Send transmits one message. The context deadline bounds the write.
	Send(ctx context.Context, data []byte) error

	// Receive blocks for the next inbound message. The context deadline
	// bounds the wait; expiry surfaces a timeout error, a closed peer a
	// disconnect error.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the socket. Idempotent.
	Close() error

	// IsAlive reports whether the transport is still usable.
	IsAlive() bool
}

// Factory opens a new transport. The connection manager receives one by
// injection so endpoint, headers and TLS settings stay per-connection
// configuration rather than process-wide state.
type Factory func(ctx context.Context) (Transport, error)
