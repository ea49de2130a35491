package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/tdsshim/paramtype"
)

// SQLClient runs statements on one physical connection taken from a
// database/sql driver. Pinning the connection reproduces the one-live-cursor
// behaviour of the TDS client libraries the statement layer is written for.
type SQLClient struct {
	db     *sqlx.DB
	conn   *sqlx.Conn
	quoter Quoter
	ownsDB bool
}

// SQLOption configures an SQLClient.
type SQLOption func(*SQLClient)

// WithQuoter overrides the literal quoting rules.
func WithQuoter(q Quoter) SQLOption {
	return func(c *SQLClient) { c.quoter = q }
}

// Open connects with the named database/sql driver and pins a connection.
// The driver package must already be registered (e.g. a blank import of
// github.com/microsoft/go-mssqldb or github.com/thda/tds).
func Open(ctx context.Context, driverName, dsn string, opts ...SQLOption) (*SQLClient, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", driverName, err)
	}
	c, err := NewSQLClient(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

// NewSQLClient pins a connection from an existing pool. Closing the client
// returns the connection but leaves db open.
func NewSQLClient(ctx context.Context, db *sqlx.DB, opts ...SQLOption) (*SQLClient, error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: acquire connection: %w", err)
	}
	c := &SQLClient{db: db, conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PrepareAndExecute implements Client.
func (c *SQLClient) PrepareAndExecute(ctx context.Context, query string, opts Options, args ...any) (Cursor, error) {
	if query == "" {
		return nil, fmt.Errorf("client: empty statement: %w", ErrPrepare)
	}
	rows, err := c.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("client: read columns: %w", err)
	}
	return &sqlCursor{rows: rows, columns: cols}, nil
}

// Exec implements Client.
func (c *SQLClient) Exec(ctx context.Context, query string, opts Options, args ...any) (Result, error) {
	if query == "" {
		return Result{}, fmt.Errorf("client: empty statement: %w", ErrPrepare)
	}
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	var out Result
	// Not every driver reports these; missing values stay zero.
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

// Quote implements Client.
func (c *SQLClient) Quote(value any, t paramtype.Type) string {
	return c.quoter.Quote(value, t)
}

// Close releases the pinned connection, and the pool if Open created it.
func (c *SQLClient) Close() error {
	err := c.conn.Close()
	if c.ownsDB {
		err = errors.Join(err, c.db.Close())
	}
	return err
}

type sqlCursor struct {
	rows    *sqlx.Rows
	columns []string
}

func (c *sqlCursor) Columns() []string {
	return c.columns
}

func (c *sqlCursor) FetchRow() ([]any, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return c.rows.SliceScan()
}

func (c *sqlCursor) NextResultSet() (bool, error) {
	if !c.rows.NextResultSet() {
		return false, c.rows.Err()
	}
	cols, err := c.rows.Columns()
	if err != nil {
		return false, err
	}
	c.columns = cols
	return true, nil
}

func (c *sqlCursor) Close() error {
	return c.rows.Close()
}
