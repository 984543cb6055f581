package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lakefront-db/sparkbridge/transport"
)

// ConnectionState tracks the lifecycle of a managed connection.
type ConnectionState string

const (
	StateClosed ConnectionState = "closed"
	StateOpen   ConnectionState = "open"
)

// AdapterResponse is the status payload handed back to adapter code after
// an operation.
type AdapterResponse struct {
	Message string `json:"message"`
}

// ManagerOptions configures a ConnectionManager.
type ManagerOptions struct {
	Logger Logger

	// ConnectTimeout bounds each individual connection attempt.
	ConnectTimeout time.Duration

	// QueryTimeout bounds each execution; zero defers to the remote engine.
	QueryTimeout time.Duration

	// ConnectRetries is the number of additional attempts after a failed
	// open. Only errors IsRetryable reports as transient are retried,
	// unless RetryAll is set.
	ConnectRetries int
	RetryAll       bool

	// RetryInterval is the initial backoff between attempts. Zero uses the
	// backoff package default.
	RetryInterval time.Duration

	// SessionParameters are forwarded to the remote session as its Hive
	// configuration during bootstrap.
	SessionParameters map[string]string
}

// ConnectionManager opens, tracks and tears down bridge connections. The
// transport factory is injected so tests and alternate transports can
// substitute the dial path.
type ConnectionManager struct {
	factory transport.Factory
	opts    ManagerOptions
	logger  Logger

	handle *ExecBridge
	state  ConnectionState
}

// NewConnectionManager creates a manager around the given dial factory.
func NewConnectionManager(factory transport.Factory, opts ManagerOptions) *ConnectionManager {
	logger := opts.Logger
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &ConnectionManager{
		factory: factory,
		opts:    opts,
		logger:  logger,
		state:   StateClosed,
	}
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnectionState {
	return m.state
}

// Handle returns the open bridge, or nil when closed.
func (m *ConnectionManager) Handle() *ExecBridge {
	return m.handle
}

// Open establishes the connection and bootstraps the remote session. A
// manager that is already open returns its existing handle.
func (m *ConnectionManager) Open(ctx context.Context) (*ExecBridge, error) {
	if m.state == StateOpen {
		return m.handle, nil
	}

	var handle *ExecBridge
	attempt := 0
	operation := func() error {
		attempt++
		h, err := m.openOnce(ctx)
		if err != nil {
			if !m.opts.RetryAll && !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			m.logger.Warn("connection attempt failed",
				Int("attempt", attempt),
				Error("error", err),
			)
			return err
		}
		handle = h
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	if m.opts.RetryInterval > 0 {
		expo.InitialInterval = m.opts.RetryInterval
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(expo, uint64(m.opts.ConnectRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	m.handle = handle
	m.state = StateOpen
	m.logger.Info("connection opened", Int("attempts", attempt))
	return m.handle, nil
}

// openOnce performs a single dial plus bootstrap, tearing down the partial
// handle if the bootstrap fails.
func (m *ConnectionManager) openOnce(ctx context.Context) (*ExecBridge, error) {
	dialCtx := ctx
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	t, err := m.factory(dialCtx)
	if err != nil {
		return nil, ErrConnectFailed("dial", err)
	}

	handle := NewExecBridge(t, m.logger, m.opts.QueryTimeout)
	if err := handle.Bootstrap(ctx, m.opts.SessionParameters); err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			m.logger.Warn("failed to close partial connection", Error("error", closeErr))
		}
		return nil, ErrConnectFailed("bootstrap", err)
	}
	return handle, nil
}

// Cancel aborts whatever execution is in flight on the open handle.
func (m *ConnectionManager) Cancel() error {
	if m.state != StateOpen || m.handle == nil {
		return nil
	}
	return m.handle.Cancel()
}

// Close tears down the connection. Closing a closed manager is a no-op.
func (m *ConnectionManager) Close() error {
	if m.state != StateOpen || m.handle == nil {
		m.state = StateClosed
		return nil
	}
	err := m.handle.Close()
	m.handle = nil
	m.state = StateClosed
	m.logger.Info("connection closed")
	return err
}

// Commit is a no-op. The remote engine auto-commits every statement.
func (m *ConnectionManager) Commit() error { return nil }

// Rollback is a no-op for the same reason Commit is.
func (m *ConnectionManager) Rollback() error { return nil }

// AddBeginQuery is a no-op transaction hook.
func (m *ConnectionManager) AddBeginQuery() {}

// AddCommitQuery is a no-op transaction hook.
func (m *ConnectionManager) AddCommitQuery() {}

// GetResponse reports operation status to adapter code.
func (m *ConnectionManager) GetResponse() AdapterResponse {
	return AdapterResponse{Message: "OK"}
}

// IsRetryable reports whether an error looks transient: the remote engine
// signals recoverable conditions with "pending" or "temporarily_unavailable"
// in the message text.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "pending") || strings.Contains(msg, "temporarily_unavailable")
}

// DataTypeCodeToName maps a cursor description type code to a type name.
// The session reports codes as strings that already are the name, so they
// pass through unchanged.
func DataTypeCodeToName(typeCode string) string {
	return typeCode
}
