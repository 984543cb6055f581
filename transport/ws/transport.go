// Package ws implements the transport over a websocket, the socket flavor
// the remote execution service speaks.
package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/lakefront-db/sparkbridge/protocol"
	"github.com/lakefront-db/sparkbridge/transport"
)

const (
	defaultConnectTimeout = 120 * time.Second
	defaultCloseTimeout   = 120 * time.Second
)

// Options configures a websocket transport.
type Options struct {
	// Endpoint is the ws:// or wss:// connect URL.
	Endpoint string

	// Origin overrides the handshake origin. Derived from the endpoint
	// when empty.
	Origin string

	// Headers are sent with the opening handshake (authorization,
	// instance routing).
	Headers http.Header

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// ConnectTimeout bounds the dial and handshake. Default: 120s.
	ConnectTimeout time.Duration

	// CloseTimeout bounds the closing handshake. Default: 120s.
	CloseTimeout time.Duration
}

// Transport is a websocket-backed transport. One instance owns one socket.
type Transport struct {
	conn         *websocket.Conn
	closeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	alive  bool
}

// Dial opens a websocket connection to the endpoint. The context deadline,
// when sooner than ConnectTimeout, bounds the attempt.
func Dial(ctx context.Context, opts Options) (transport.Transport, error) {
	if opts.Endpoint == "" {
		return nil, protocol.ConnectError("endpoint is required", nil)
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < connectTimeout {
			connectTimeout = remaining
		}
	}

	origin := opts.Origin
	if origin == "" {
		derived, err := deriveOrigin(opts.Endpoint)
		if err != nil {
			return nil, protocol.ConnectError("invalid endpoint", map[string]any{
				"endpoint": opts.Endpoint,
				"error":    err.Error(),
			})
		}
		origin = derived
	}

	config, err := websocket.NewConfig(opts.Endpoint, origin)
	if err != nil {
		return nil, protocol.ConnectError("invalid endpoint", map[string]any{
			"endpoint": opts.Endpoint,
			"error":    err.Error(),
		})
	}
	if opts.Headers != nil {
		config.Header = opts.Headers
	}
	config.TlsConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}
	config.Dialer = &net.Dialer{Timeout: connectTimeout}

	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, protocol.ConnectError("failed to connect to "+opts.Endpoint, map[string]any{
			"endpoint": opts.Endpoint,
			"timeout":  connectTimeout.String(),
			"error":    err.Error(),
		})
	}

	closeTimeout := opts.CloseTimeout
	if closeTimeout == 0 {
		closeTimeout = defaultCloseTimeout
	}

	return &Transport{
		conn:         conn,
		closeTimeout: closeTimeout,
		alive:        true,
	}, nil
}

// deriveOrigin maps a socket endpoint to its HTTP origin.
func deriveOrigin(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if !t.IsAlive() {
		return protocol.DisconnectedError("transport is closed", nil)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return protocol.ProtoError("failed to set write deadline", map[string]any{"error": err.Error()})
		}
	} else if err := t.conn.SetWriteDeadline(time.Time{}); err != nil {
		return protocol.ProtoError("failed to clear write deadline", map[string]any{"error": err.Error()})
	}

	if err := websocket.Message.Send(t.conn, string(data)); err != nil {
		t.markDead()
		return t.classify(ctx, err, "send failed")
	}
	return nil
}

// Receive implements transport.Transport.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	if !t.IsAlive() {
		return nil, protocol.DisconnectedError("transport is closed", nil)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, protocol.ProtoError("failed to set read deadline", map[string]any{"error": err.Error()})
		}
	} else if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, protocol.ProtoError("failed to clear read deadline", map[string]any{"error": err.Error()})
	}

	var msg []byte
	if err := websocket.Message.Receive(t.conn, &msg); err != nil {
		t.markDead()
		return nil, t.classify(ctx, err, "peer disconnected")
	}
	return msg, nil
}

// classify maps low-level socket failures onto protocol error codes.
func (t *Transport) classify(ctx context.Context, err error, disconnectMsg string) error {
	var nerr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return protocol.TimeoutError("deadline exceeded waiting for the peer", nil)
	case errors.As(err, &nerr) && nerr.Timeout():
		return protocol.TimeoutError("deadline exceeded waiting for the peer", nil)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return protocol.DisconnectedError(disconnectMsg, nil)
	default:
		return protocol.DisconnectedError(disconnectMsg, map[string]any{"error": err.Error()})
	}
}

// Close implements transport.Transport. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.alive = false

	// Bound the closing handshake so Close cannot hang on a stuck peer.
	_ = t.conn.SetDeadline(time.Now().Add(t.closeTimeout))
	return t.conn.Close()
}

// IsAlive implements transport.Transport.
func (t *Transport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive && !t.closed
}

func (t *Transport) markDead() {
	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()
}
