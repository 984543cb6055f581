// Package bridge drives a remote Spark execution session over a persistent
// duplex transport. It ships code fragments, receive-loops over the async
// reply stream until a terminal state, and exposes a synchronous cursor
// surface to adapter code.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"

	"github.com/lakefront-db/sparkbridge/protocol"
	"github.com/lakefront-db/sparkbridge/transport"
)

// bootstrapFragment builds the fragment that establishes the session cursor
// on the remote side. It runs once per connection, before any query.
// Server-side parameters become the session's Hive configuration; the JSON
// object literal doubles as a Python dict and keeps keys sorted.
func bootstrapFragment(params map[string]string) (string, error) {
	if len(params) == 0 {
		return "from pyhive import hive\ncursor = hive.connect('localhost').cursor()", nil
	}
	cfg, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode session parameters: %w", err)
	}
	return fmt.Sprintf(
		"from pyhive import hive\ncursor = hive.connect('localhost', configuration=%s).cursor()",
		cfg,
	), nil
}

// executeFragment runs a statement through the session cursor and polls the
// Thrift operation until it leaves a transitional state. The statement and
// bindings are injected as session inputs rather than interpolated. The
// trailing raises matter: the session only reports a failure frame when the
// shipped code raises, so an operation that ends with an error message or
// outside the success states must raise on the remote side.
const executeFragment = `from TCLIService.ttypes import TOperationState as ThriftState
STATE_PENDING = [
    ThriftState.INITIALIZED_STATE,
    ThriftState.RUNNING_STATE,
    ThriftState.PENDING_STATE,
]
STATE_SUCCESS = [
    ThriftState.FINISHED_STATE,
]
cursor.execute(sql, bindings=bindings, async_=True)
poll_state = cursor.poll()
state = poll_state.operationState
while state in STATE_PENDING:
    poll_state = cursor.poll()
    state = poll_state.operationState
if poll_state.errorMessage:
    raise Exception(poll_state.errorMessage)
if state not in STATE_SUCCESS:
    status_type = ThriftState._VALUES_TO_NAMES.get(state, "Unknown<{!r}>".format(state))
    raise Exception("Query failed with status: {}".format(status_type))`

var (
	_ Cursor            = (*ExecBridge)(nil)
	_ ConnectionWrapper = (*ExecBridge)(nil)
)

// ExecBridge owns one transport and enforces the single in-flight execution
// contract on it.
type ExecBridge struct {
	transport    transport.Transport
	logger       Logger
	queryTimeout time.Duration

	inFlight  atomic.Bool
	cancelled atomic.Bool
	closed    atomic.Bool
}

// NewExecBridge wraps an established transport. A zero queryTimeout disables
// the local deadline and defers entirely to the remote engine.
func NewExecBridge(t transport.Transport, logger Logger, queryTimeout time.Duration) *ExecBridge {
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &ExecBridge{
		transport:    t,
		logger:       logger,
		queryTimeout: queryTimeout,
	}
}

// Exec ships a code fragment with the given inputs and blocks until the
// remote session reports a terminal state, returning the terminal frame.
// Only one execution may be in flight per bridge; a concurrent call fails
// immediately rather than queueing.
func (b *ExecBridge) Exec(ctx context.Context, code string, inputs map[string]protocol.Value, outputs []string) (*protocol.ResponseEnvelope, error) {
	if b.closed.Load() {
		return nil, ErrClosed()
	}
	if !b.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy()
	}
	defer b.inFlight.Store(false)
	b.cancelled.Store(false)

	traceID := uuid.New().String()
	b.logger.Debug("submitting code fragment",
		String("trace_id", traceID),
		String("fragment", fmt.Sprintf("%016x", xxhash.Sum64String(code))),
		Int("inputs", len(inputs)),
		Int("outputs", len(outputs)),
	)

	encoded := make(map[string]string, len(inputs))
	for name, val := range inputs {
		enc, err := protocol.EncodeValue(val)
		if err != nil {
			return nil, &BridgeError{
				Type:    ErrorTypeDatabase,
				Message: fmt.Sprintf("encode input %q", name),
				Cause:   err,
			}
		}
		encoded[name] = enc
	}

	frame, err := protocol.NewCodeRequest(code, encoded, outputs).Encode()
	if err != nil {
		return nil, &BridgeError{Type: ErrorTypeDatabase, Message: "encode request", Cause: err}
	}

	if b.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.queryTimeout)
		defer cancel()
	}

	started := time.Now()
	if err := b.transport.Send(ctx, frame); err != nil {
		return nil, b.classify(traceID, err)
	}

	resp, err := b.receiveLoop(ctx, traceID)
	if err != nil {
		return nil, err
	}

	if resp.State.Failure() {
		b.logger.Warn("execution failed",
			String("trace_id", traceID),
			String("state", string(resp.State)),
			Duration("elapsed", time.Since(started)),
		)
		if resp.State == protocol.StateBadInput {
			return nil, ErrExecutionFailed(resp.Stdout)
		}
		return nil, ErrQueryFailed(string(resp.State), resp.Stdout)
	}

	b.logger.Debug("execution completed",
		String("trace_id", traceID),
		Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

// receiveLoop drains response frames until a terminal state arrives.
func (b *ExecBridge) receiveLoop(ctx context.Context, traceID string) (*protocol.ResponseEnvelope, error) {
	for {
		raw, err := b.transport.Receive(ctx)
		if err != nil {
			return nil, b.classify(traceID, err)
		}
		resp, err := protocol.DecodeResponse(raw)
		if err != nil {
			return nil, &BridgeError{Type: ErrorTypeDatabase, Message: "malformed response frame", Cause: err}
		}
		if resp.State.Terminal() {
			return resp, nil
		}
		b.logger.Debug("execution in progress",
			String("trace_id", traceID),
			String("state", string(resp.State)),
		)
	}
}

// classify maps a transport failure to the bridge error surface. A failure
// observed after Cancel fired is reported as a cancellation regardless of
// its transport-level shape.
func (b *ExecBridge) classify(traceID string, err error) error {
	if b.cancelled.Load() {
		b.logger.Info("execution cancelled", String("trace_id", traceID))
		return ErrCancelled()
	}
	if te, ok := err.(*protocol.TransportError); ok && te.Code == protocol.ErrorCodeTimeout {
		return ErrQueryTimeout(te.Message, err)
	}
	return ErrDisconnected(err)
}

// Bootstrap establishes the remote session cursor, forwarding server-side
// parameters as session configuration. It must succeed before the bridge
// accepts queries.
func (b *ExecBridge) Bootstrap(ctx context.Context, params map[string]string) error {
	code, err := bootstrapFragment(params)
	if err != nil {
		return &BridgeError{Type: ErrorTypeDatabase, Message: "build session setup", Cause: err}
	}
	_, err = b.Exec(ctx, code, nil, nil)
	return err
}

// Execute ships a SQL statement and blocks until the remote engine finishes
// it. A trailing semicolon is stripped; the Thrift layer rejects it.
func (b *ExecBridge) Execute(ctx context.Context, sql string, bindings []any) error {
	stmt := strings.TrimSuffix(strings.TrimSpace(sql), ";")

	bound, err := CoerceBindings(bindings)
	if err != nil {
		return &BridgeError{Type: ErrorTypeDatabase, Message: "coerce bindings", Cause: err}
	}

	inputs := map[string]protocol.Value{
		"sql":      protocol.StringValue(stmt),
		"bindings": bound,
	}
	_, err = b.Exec(ctx, executeFragment, inputs, nil)
	return err
}

// Fetchall returns every row of the last statement's result set.
func (b *ExecBridge) Fetchall(ctx context.Context) ([][]any, error) {
	resp, err := b.Exec(ctx, "fetchall = cursor.fetchall()", nil, []string{"fetchall"})
	if err != nil {
		return nil, err
	}
	val, ok, err := resp.Obj("fetchall")
	if err != nil {
		return nil, &BridgeError{Type: ErrorTypeDatabase, Message: "decode result rows", Cause: err}
	}
	if !ok || val.Kind == protocol.KindNull {
		return [][]any{}, nil
	}
	rows, ok := val.Native().([][]any)
	if !ok {
		return nil, &BridgeError{
			Type:    ErrorTypeDatabase,
			Message: fmt.Sprintf("unexpected result shape %q", val.Kind),
		}
	}
	return rows, nil
}

// Description returns the column metadata of the last statement.
func (b *ExecBridge) Description(ctx context.Context) ([]protocol.ColumnDescription, error) {
	resp, err := b.Exec(ctx, "desc = cursor.description", nil, []string{"desc"})
	if err != nil {
		return nil, err
	}
	val, ok, err := resp.Obj("desc")
	if err != nil {
		return nil, &BridgeError{Type: ErrorTypeDatabase, Message: "decode description", Cause: err}
	}
	if !ok || val.Kind == protocol.KindNull {
		return []protocol.ColumnDescription{}, nil
	}
	desc, ok := val.Native().([]protocol.ColumnDescription)
	if !ok {
		return nil, &BridgeError{
			Type:    ErrorTypeDatabase,
			Message: fmt.Sprintf("unexpected description shape %q", val.Kind),
		}
	}
	return desc, nil
}

// Cursor returns the bridge's single cursor, which is the bridge itself.
// The remote session holds exactly one cursor per socket.
func (b *ExecBridge) Cursor() Cursor {
	return b
}

// Rollback is a no-op. Every statement auto-commits on the remote engine.
func (b *ExecBridge) Rollback() error {
	return nil
}

// Cancel aborts the in-flight execution by force-closing the transport,
// which unblocks the receive loop. Cancelling an idle bridge is a no-op.
func (b *ExecBridge) Cancel() error {
	if !b.inFlight.Load() {
		return nil
	}
	b.cancelled.Store(true)
	b.logger.Info("cancelling in-flight execution")
	return b.transport.Close()
}

// Close releases the transport. Safe to call more than once.
func (b *ExecBridge) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.transport.Close()
}

// Alive reports whether the underlying transport is still usable.
func (b *ExecBridge) Alive() bool {
	return !b.closed.Load() && b.transport.IsAlive()
}
