package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/stmt"
)

// ErrNoClient is returned by a Connector that has no way to open a client.
var ErrNoClient = errors.New("tdsshim: connector has no client opener")

const driverName = "tdsshim"

func init() {
	sql.Register(driverName, &Driver{})
}

// --- Driver implementation ---

// Driver opens tdsshim connections from DSNs (see ParseDSN).
type Driver struct{}

// Open returns a new connection for dsn.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	c, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

// OpenConnector parses dsn once so database/sql can reuse the result for
// every pooled connection.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	target, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	open := func(ctx context.Context) (client.Client, error) {
		return client.Open(ctx, target.DriverName, target.DSN,
			client.WithQuoter(client.Quoter{Unicode: target.Unicode}))
	}
	c := NewConnector(open)
	c.driver = d
	return c, nil
}

// --- Connector implementation ---

// Connector opens connections through a caller-supplied client factory.
// Use it with sql.OpenDB to run tdsshim over a custom client.Client.
type Connector struct {
	driver *Driver
	open   func(ctx context.Context) (client.Client, error)
	opts   []stmt.Option
}

// NewConnector returns a Connector that calls open for each new
// connection. opts configure every stmt.Conn it creates.
func NewConnector(open func(ctx context.Context) (client.Client, error), opts ...stmt.Option) *Connector {
	return &Connector{driver: &Driver{}, open: open, opts: opts}
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if c.open == nil {
		return nil, ErrNoClient
	}
	cl, err := c.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("tdsshim: open client: %w", err)
	}
	return &Conn{conn: stmt.NewConn(cl, c.opts...)}, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return c.driver
}

// --- Connection implementation ---

// Conn implements driver.Conn on top of a stmt.Conn. Every statement is
// emulated: arguments are interpolated into the SQL text.
type Conn struct {
	conn *stmt.Conn
	inTx bool
}

// Statements returns the underlying statement connection.
func (c *Conn) Statements() *stmt.Conn { return c.conn }

// Prepare returns a prepared statement, suitable for query or execution.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext checks query and returns a statement for it. Nothing is
// sent to the server.
func (c *Conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	s, err := c.conn.Prepare(query, nil)
	if err != nil {
		return nil, err
	}
	s.Close()
	return &Stmt{conn: c, query: query}, nil
}

// Close releases the connection's cursor and client.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx opens a transaction with a BEGIN TRANSACTION batch. Only the
// default isolation level is supported.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.inTx {
		return nil, fmt.Errorf("tdsshim: transaction already active on this connection")
	}
	if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) {
		return nil, fmt.Errorf("tdsshim: isolation level %d is not supported", opts.Isolation)
	}
	if opts.ReadOnly {
		return nil, fmt.Errorf("tdsshim: read-only transactions are not supported")
	}
	if _, err := c.conn.Exec(ctx, "BEGIN TRANSACTION"); err != nil {
		return nil, fmt.Errorf("tdsshim: begin: %w", err)
	}
	c.inTx = true
	return &Tx{conn: c}, nil
}

// ExecContext runs query without preparing a driver.Stmt first.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.conn.Exec(ctx, query, namedArgs(args)...)
	if err != nil {
		return nil, err
	}
	return result{res}, nil
}

// QueryContext runs query without preparing a driver.Stmt first.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	s, err := c.conn.Prepare(query, nil)
	if err != nil {
		return nil, err
	}
	if err := s.Execute(ctx, namedArgs(args)...); err != nil {
		s.Close()
		return nil, err
	}
	return newRows(s), nil
}

// CheckNamedValue lets stmt.TypedArg through database/sql untouched so
// callers can bind large objects and explicit types.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(stmt.TypedArg); ok {
		return nil
	}
	return driver.ErrSkip
}

func namedArgs(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = sql.Named(a.Name, a.Value)
		} else {
			out[i] = a.Value
		}
	}
	return out
}

// --- Statement implementation ---

// Stmt implements driver.Stmt. Each query builds its own emulated
// statement so earlier Rows keep their results.
type Stmt struct {
	conn  *Conn
	query string
}

// Close closes the statement.
func (s *Stmt) Close() error {
	return nil
}

// NumInput returns -1; placeholders are only counted at interpolation time.
func (s *Stmt) NumInput() int {
	return -1
}

// Exec executes a prepared statement with the given arguments and returns a Result.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

// Query executes a prepared statement with the given arguments and returns Rows.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

// QueryContext implements driver.StmtQueryContext.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

// --- Transaction implementation ---

// Tx implements driver.Tx.
type Tx struct {
	conn *Conn
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.finish("COMMIT TRANSACTION")
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.finish("ROLLBACK TRANSACTION")
}

func (t *Tx) finish(query string) error {
	if t.done {
		return fmt.Errorf("tdsshim: transaction already committed or rolled back")
	}
	// The transaction is over from the client's side whatever the server says.
	t.done = true
	t.conn.inTx = false
	if _, err := t.conn.conn.Exec(context.Background(), query); err != nil {
		return fmt.Errorf("tdsshim: %s: %w", query, err)
	}
	return nil
}

// --- Result implementation ---

type result struct {
	res client.Result
}

// LastInsertId returns the id reported by the client, or 0.
func (r result) LastInsertId() (int64, error) {
	return r.res.LastInsertID, nil
}

// RowsAffected returns the number of rows affected by the statement.
func (r result) RowsAffected() (int64, error) {
	return r.res.RowsAffected, nil
}

// --- Rows implementation ---

// Rows implements driver.Rows and driver.RowsNextResultSet over an
// emulated statement.
type Rows struct {
	stmt    *stmt.EmulatedStatement
	columns []string
	// probed is set once HasNextResultSet has advanced the statement;
	// hasNext holds what it found.
	probed  bool
	hasNext bool
}

func newRows(s *stmt.EmulatedStatement) *Rows {
	return &Rows{stmt: s, columns: s.Columns()}
}

// Columns returns the names of the columns.
func (r *Rows) Columns() []string {
	return r.columns
}

// Close closes the Rows and the statement behind them.
func (r *Rows) Close() error {
	return r.stmt.Close()
}

// Next fills dest with the next row, or returns io.EOF.
func (r *Rows) Next(dest []driver.Value) error {
	if r.probed {
		return io.EOF
	}
	// Rows that were cached during a hand-off are only available keyed by
	// column name; live rows are read positionally so duplicate column
	// names survive.
	if r.stmt.Statement().Cached() {
		row, ok, err := r.stmt.FetchAs(stmt.Assoc)
		if err != nil {
			return err
		}
		if !ok {
			return io.EOF
		}
		for i, col := range r.columns {
			if i < len(dest) {
				dest[i] = row.Assoc[col]
			}
		}
		return nil
	}

	row, ok, err := r.stmt.FetchAs(stmt.Num)
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}
	if len(row.Num) != len(dest) {
		return fmt.Errorf("tdsshim: column count mismatch. Expected %d, got %d", len(dest), len(row.Num))
	}
	for i, v := range row.Num {
		dest[i] = v
	}
	return nil
}

// HasNextResultSet reports whether another rowset follows. The cursor can
// not peek, so this advances to it; NextResultSet then only commits the
// move.
func (r *Rows) HasNextResultSet() bool {
	if !r.probed {
		more, err := r.stmt.NextRowset()
		r.probed = true
		r.hasNext = more && err == nil
	}
	return r.hasNext
}

// NextResultSet moves to the next rowset, or returns io.EOF.
func (r *Rows) NextResultSet() error {
	more := r.hasNext
	if !r.probed {
		var err error
		more, err = r.stmt.NextRowset()
		if err != nil {
			return err
		}
	}
	r.probed = false
	r.hasNext = false
	if !more {
		return io.EOF
	}
	r.columns = r.stmt.Columns()
	return nil
}
