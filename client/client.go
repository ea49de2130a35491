// Package client defines the low-level primitive the statement layer is
// built on: a connection that can run literal SQL, hand back a forward-only
// cursor over one or more rowsets, and quote values as SQL literals.
//
// SQLClient adapts any database/sql driver (go-mssqldb, thda/tds, sqlite3)
// to this interface by pinning a single physical connection.
package client

import (
	"context"
	"errors"

	"github.com/tomyedwab/tdsshim/paramtype"
)

// ErrPrepare marks failures that happened before the statement ran, when
// the server rejected the SQL text or no statement handle was produced.
var ErrPrepare = errors.New("prepare failed")

// OptionOriginalStatement is set by emulated statements when they prepare
// their interpolated SQL, so the text is run as-is.
const OptionOriginalStatement = "original_statement"

// Options carries statement-level driver options through to the client.
// Unknown keys are ignored.
type Options map[string]any

// With returns a copy of o with key set to value.
func (o Options) With(key string, value any) Options {
	out := make(Options, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	out[key] = value
	return out
}

// Bool reads a boolean option.
func (o Options) Bool(key string) bool {
	b, _ := o[key].(bool)
	return b
}

// Client is a single synchronous connection to the database.
type Client interface {
	// PrepareAndExecute runs query and returns a cursor positioned before
	// the first row of its first rowset.
	PrepareAndExecute(ctx context.Context, query string, opts Options, args ...any) (Cursor, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, opts Options, args ...any) (Result, error)

	// Quote renders value as literal SQL text of type t.
	Quote(value any, t paramtype.Type) string

	Close() error
}

// Cursor is a forward-only reader over the rowsets of one execution.
type Cursor interface {
	// Columns returns the column names of the current rowset. An empty
	// slice means the rowset carries no data (status or void results).
	Columns() []string

	// FetchRow returns the next row of the current rowset in column
	// order, or io.EOF once the rowset is exhausted.
	FetchRow() ([]any, error)

	// NextResultSet advances to the next rowset and reports whether one
	// exists.
	NextResultSet() (bool, error)

	Close() error
}

// Result summarizes a statement that returned no rows.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}
