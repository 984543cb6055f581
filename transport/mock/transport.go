// Package mock provides a scripted in-memory transport for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/lakefront-db/sparkbridge/protocol"
)

type frame struct {
	data []byte
	err  error
}

// Transport implements transport.Transport against a scripted queue of
// inbound frames. Receive blocks until a frame is scripted, the transport
// is closed, or the context ends, so tests stay deterministic without
// sleeping.
type Transport struct {
	frames  chan frame
	closeCh chan struct{}

	mu          sync.Mutex
	closed      bool
	sendErr     error
	sendHistory [][]byte
	closeCalls  int
}

// New creates an empty scripted transport.
func New() *Transport {
	return &Transport{
		frames:  make(chan frame, 64),
		closeCh: make(chan struct{}),
	}
}

// Script queues raw inbound frames in order.
func (m *Transport) Script(frames ...string) *Transport {
	for _, f := range frames {
		m.frames <- frame{data: []byte(f)}
	}
	return m
}

// ScriptEnvelope queues an encoded response envelope.
func (m *Transport) ScriptEnvelope(env *protocol.ResponseEnvelope) *Transport {
	data, err := env.Encode()
	if err != nil {
		panic(err)
	}
	m.frames <- frame{data: data}
	return m
}

// ScriptDisconnect queues a peer disconnect.
func (m *Transport) ScriptDisconnect() *Transport {
	m.frames <- frame{err: protocol.DisconnectedError("peer disconnected", nil)}
	return m
}

// ScriptReceiveError queues an arbitrary receive failure.
func (m *Transport) ScriptReceiveError(err error) *Transport {
	m.frames <- frame{err: err}
	return m
}

// WithSendError makes every Send fail with err.
func (m *Transport) WithSendError(err error) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	return m
}

// Send implements transport.Transport.
func (m *Transport) Send(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return protocol.DisconnectedError("transport is closed", nil)
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	m.sendHistory = append(m.sendHistory, copied)
	return nil
}

// Receive implements transport.Transport.
func (m *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-m.frames:
		if f.err != nil {
			return nil, f.err
		}
		return f.data, nil
	case <-m.closeCh:
		return nil, protocol.DisconnectedError("transport is closed", nil)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, protocol.TimeoutError("deadline exceeded waiting for the peer", nil)
		}
		return nil, ctx.Err()
	}
}

// Close implements transport.Transport.
func (m *Transport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
	return nil
}

// IsAlive implements transport.Transport.
func (m *Transport) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// SendHistory returns a copy of every frame sent through the transport.
func (m *Transport) SendHistory() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([][]byte, len(m.sendHistory))
	copy(history, m.sendHistory)
	return history
}

// SentRequests decodes the send history as request envelopes.
func (m *Transport) SentRequests() ([]*protocol.RequestEnvelope, error) {
	history := m.SendHistory()
	reqs := make([]*protocol.RequestEnvelope, 0, len(history))
	for _, data := range history {
		req, err := protocol.DecodeRequest(data)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// CloseCalls returns how many times Close was invoked.
func (m *Transport) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}
