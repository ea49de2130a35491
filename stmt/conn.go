package stmt

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/interpolate"
	"github.com/tomyedwab/tdsshim/paramtype"
)

const defaultNamedPrefix = ":"

// Conn wraps one client connection and owns its active-cursor slot. The
// underlying client can keep only one readable cursor open, so before any
// statement runs, the statement that currently holds the cursor has its
// unread rows moved into its own result cache.
//
// A Conn and its statements must not be used from more than one goroutine
// at a time.
type Conn struct {
	client      client.Client
	logger      *zap.Logger
	policy      RowsetPolicy
	namedPrefix string

	active *Statement
	closed bool
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for execute and hand-off events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithRowsetPolicy chooses how empty rowsets are skipped after execute.
func WithRowsetPolicy(p RowsetPolicy) Option {
	return func(c *Conn) { c.policy = p }
}

// WithNamedPrefix sets the marker prepended to sql.NamedArg names that do
// not carry one already. The default is ":".
func WithNamedPrefix(prefix string) Option {
	return func(c *Conn) { c.namedPrefix = prefix }
}

// NewConn wraps cl.
func NewConn(cl client.Client, opts ...Option) *Conn {
	c := &Conn{
		client:      cl,
		logger:      zap.NewNop(),
		policy:      SkipEmpty,
		namedPrefix: defaultNamedPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Client returns the wrapped client.
func (c *Conn) Client() client.Client { return c.client }

// Quote renders value as a SQL literal using the client's rules.
func (c *Conn) Quote(value any, t paramtype.Type) string {
	return c.client.Quote(value, t)
}

// Active returns the statement currently holding the cursor, if any.
func (c *Conn) Active() *Statement { return c.active }

// Prepare returns an emulated statement for query. Nothing is sent to the
// server until Execute.
func (c *Conn) Prepare(query string, opts client.Options) (*EmulatedStatement, error) {
	if err := c.checkOpen("prepare"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, newError(KindPrepare, "prepare", "empty statement", nil)
	}
	return &EmulatedStatement{
		conn:   c,
		sql:    query,
		opts:   opts,
		params: make(interpolate.Params),
	}, nil
}

// PrepareNative returns a statement whose parameters are handed to the
// client's own binding instead of being interpolated.
func (c *Conn) PrepareNative(query string, opts client.Options) (*Statement, error) {
	if err := c.checkOpen("prepare"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, newError(KindPrepare, "prepare", "empty statement", nil)
	}
	return newStatement(c, query, opts), nil
}

// Query prepares query, applies mode and executes it with args.
func (c *Conn) Query(ctx context.Context, query string, mode FetchMode, args ...any) (*EmulatedStatement, error) {
	s, err := c.Prepare(query, nil)
	if err != nil {
		return nil, err
	}
	if err := s.SetFetchMode(mode); err != nil {
		return nil, err
	}
	if err := s.Execute(ctx, args...); err != nil {
		if cerr := s.Close(); cerr != nil {
			c.logger.Debug("close failed query", zap.Error(cerr))
		}
		return nil, err
	}
	return s, nil
}

// Exec interpolates args into query and runs it without reading rows.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (client.Result, error) {
	s, err := c.Prepare(query, nil)
	if err != nil {
		return client.Result{}, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			c.logger.Debug("close exec statement", zap.Error(err))
		}
	}()
	return s.Exec(ctx, args...)
}

// Close releases the active statement's cursor and the client.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.active != nil {
		err = c.active.CloseCursor()
	}
	return errors.Join(err, c.client.Close())
}

func (c *Conn) checkOpen(op string) error {
	if c.closed {
		return usageError(op, "connection is closed")
	}
	return nil
}

// handOff makes room for next to run. The active statement, unless it is
// next itself, has its remaining rows cached and gives up the cursor.
func (c *Conn) handOff(next *Statement) {
	prev := c.active
	if prev == nil || prev == next {
		return
	}
	prev.drain()
	c.active = nil
}

func (c *Conn) activate(s *Statement) {
	c.active = s
}

func (c *Conn) release(s *Statement) {
	if c.active == s {
		c.active = nil
	}
}

func (c *Conn) exec(ctx context.Context, query string, opts client.Options) (client.Result, error) {
	if err := c.checkOpen("exec"); err != nil {
		return client.Result{}, err
	}
	c.handOff(nil)
	res, err := c.client.Exec(ctx, query, opts)
	if err != nil {
		return client.Result{}, executionError("exec", err)
	}
	c.logger.Debug("executed statement", zap.Int("sql_len", len(query)), zap.Int64("rows_affected", res.RowsAffected))
	return res, nil
}

// TypedArg binds an argument with an explicit wire type instead of an
// inferred one. Large objects must be passed this way.
type TypedArg struct {
	Value any
	Type  paramtype.Type
}

// Typed wraps v so that it binds as t.
func Typed(v any, t paramtype.Type) TypedArg {
	return TypedArg{Value: v, Type: t}
}

// bindArgs binds execute-time arguments. Plain arguments are numbered from
// 1 in the order they appear; sql.NamedArg values bind by name.
func (c *Conn) bindArgs(args []any, bind func(interpolate.Key, any, paramtype.Type) error) error {
	pos := 0
	for _, a := range args {
		var key interpolate.Key
		if na, ok := a.(sql.NamedArg); ok {
			key = interpolate.Named(c.namedKey(na.Name))
			a = na.Value
		} else {
			pos++
			key = interpolate.Pos(pos)
		}

		t := paramtype.Unknown
		if ta, ok := a.(TypedArg); ok {
			a, t = ta.Value, ta.Type
		}
		if err := bind(key, a, t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) namedKey(name string) string {
	if strings.HasPrefix(name, ":") || strings.HasPrefix(name, "@") {
		return name
	}
	return c.namedPrefix + name
}
