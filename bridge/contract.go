package bridge

import (
	"context"

	"github.com/lakefront-db/sparkbridge/protocol"
)

// Cursor is the synchronous query surface handed to adapter code. Each
// connection exposes exactly one cursor; concurrent executions on the
// same cursor are rejected rather than queued.
type Cursor interface {
	// Execute ships a SQL statement to the remote engine and blocks until
	// it reaches a terminal state. Bindings may be nil.
	Execute(ctx context.Context, sql string, bindings []any) error

	// Fetchall returns every row produced by the last executed statement.
	// A statement that produced no result set yields an empty slice.
	Fetchall(ctx context.Context) ([][]any, error)

	// Description returns the column metadata of the last executed
	// statement, or an empty slice when there is none.
	Description(ctx context.Context) ([]protocol.ColumnDescription, error)

	// Cancel aborts the in-flight execution, if any. Cancelling an idle
	// cursor is a no-op.
	Cancel() error

	// Close releases the cursor and its underlying transport.
	Close() error
}

// ConnectionWrapper is the full connection surface adapter frameworks bind
// to: the cursor operations plus the hooks the framework expects every
// connection to have. Rollback exists to satisfy that contract; the remote
// engine auto-commits, so it never undoes anything.
type ConnectionWrapper interface {
	// Cursor returns the connection's single cursor.
	Cursor() Cursor

	Execute(ctx context.Context, sql string, bindings []any) error
	Fetchall(ctx context.Context) ([][]any, error)
	Description(ctx context.Context) ([]protocol.ColumnDescription, error)
	Cancel() error
	Close() error

	// Rollback is a no-op.
	Rollback() error
}
