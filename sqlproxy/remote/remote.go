// Package remote implements client.Client over the sqlproxy cursor
// protocol, so a stmt.Conn can run against a database owned by another
// process (see package host).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/paramtype"
	"github.com/tomyedwab/tdsshim/sqlproxy/types"
)

// DefaultFetchSize is the number of rows requested per fetch round trip.
const DefaultFetchSize = 100

// CallHost delivers one request payload to the host and returns its
// response payload.
type CallHost func(ctx context.Context, requestPayload []byte) (responsePayload []byte, err error)

// HTTPCaller posts payloads to a host served over HTTP. hc may be nil.
func HTTPCaller(url string, hc *http.Client) CallHost {
	if hc == nil {
		hc = http.DefaultClient
	}
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("host returned %s: %s", resp.Status, bytes.TrimSpace(body))
		}
		return body, nil
	}
}

// Client is a client.Client whose cursors live on the host. Rows are
// pulled in batches of the configured fetch size.
type Client struct {
	call      CallHost
	quoter    client.Quoter
	fetchSize int
}

// Option configures a Client.
type Option func(*Client)

// WithQuoter sets the literal quoting rules. They must match the database
// behind the host.
func WithQuoter(q client.Quoter) Option {
	return func(c *Client) { c.quoter = q }
}

// WithFetchSize sets how many rows each fetch round trip asks for.
func WithFetchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.fetchSize = n
		}
	}
}

// New returns a Client that sends every request through call.
func New(call CallHost, opts ...Option) *Client {
	c := &Client{call: call, fetchSize: DefaultFetchSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PrepareAndExecute implements client.Client.
func (c *Client) PrepareAndExecute(ctx context.Context, query string, opts client.Options, args ...any) (client.Cursor, error) {
	var resp types.CursorResponse
	err := c.roundTrip(ctx, types.Request{
		Command: types.CommandExecute,
		SQL:     query,
		Args:    types.EncodeArgs(args),
		Options: opts,
	}, &resp, &resp.Status)
	if err != nil {
		return nil, err
	}
	if resp.CursorID == "" {
		return nil, fmt.Errorf("sqlproxy: host did not return a cursor id: %w", client.ErrPrepare)
	}
	return &cursor{client: c, id: resp.CursorID, columns: resp.Columns}, nil
}

// Exec implements client.Client.
func (c *Client) Exec(ctx context.Context, query string, opts client.Options, args ...any) (client.Result, error) {
	var resp types.ExecResponse
	err := c.roundTrip(ctx, types.Request{
		Command: types.CommandExec,
		SQL:     query,
		Args:    types.EncodeArgs(args),
		Options: opts,
	}, &resp, &resp.Status)
	if err != nil {
		return client.Result{}, err
	}
	return client.Result{RowsAffected: resp.RowsAffected, LastInsertID: resp.LastInsertID}, nil
}

// Quote implements client.Client.
func (c *Client) Quote(value any, t paramtype.Type) string {
	return c.quoter.Quote(value, t)
}

// Close asks the host to drop every cursor opened through it.
func (c *Client) Close() error {
	var resp types.GeneralResponse
	return c.roundTrip(context.Background(), types.Request{Command: types.CommandCloseConn}, &resp, &resp.Status)
}

func (c *Client) roundTrip(ctx context.Context, req types.Request, resp any, status *types.Status) error {
	reqPayload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sqlproxy: failed to marshal %s request: %w", req.Command, err)
	}

	respPayload, err := c.call(ctx, reqPayload)
	if err != nil {
		return fmt.Errorf("sqlproxy: CallHost for %s failed: %w", req.Command, err)
	}

	dec := json.NewDecoder(bytes.NewReader(respPayload))
	dec.UseNumber()
	if err := dec.Decode(resp); err != nil {
		return fmt.Errorf("sqlproxy: failed to unmarshal %s response: %w", req.Command, err)
	}

	if status.Error != "" {
		hostErr := errors.New(status.Error)
		if status.Kind == types.KindPrepare {
			return fmt.Errorf("sqlproxy: host %s error: %w", req.Command, errors.Join(client.ErrPrepare, hostErr))
		}
		return fmt.Errorf("sqlproxy: host %s error: %w", req.Command, hostErr)
	}
	return nil
}

type cursor struct {
	client  *Client
	id      string
	columns []string
	buf     [][]any
	// done is set once the host reported the current rowset exhausted.
	done   bool
	closed bool
}

func (c *cursor) Columns() []string {
	return c.columns
}

func (c *cursor) FetchRow() ([]any, error) {
	if c.closed {
		return nil, fmt.Errorf("sqlproxy: cursor %s is closed", c.id)
	}
	if len(c.buf) == 0 {
		if c.done {
			return nil, io.EOF
		}
		if err := c.fill(); err != nil {
			return nil, err
		}
		if len(c.buf) == 0 {
			return nil, io.EOF
		}
	}
	row := c.buf[0]
	c.buf = c.buf[1:]
	return row, nil
}

func (c *cursor) fill() error {
	var resp types.CursorResponse
	err := c.client.roundTrip(context.Background(), types.Request{
		Command:  types.CommandFetch,
		CursorID: c.id,
		Limit:    c.client.fetchSize,
	}, &resp, &resp.Status)
	if err != nil {
		return err
	}
	for _, row := range resp.Rows {
		for i, v := range row {
			row[i] = types.Normalize(v)
		}
	}
	c.buf = resp.Rows
	c.done = resp.Done
	return nil
}

func (c *cursor) NextResultSet() (bool, error) {
	if c.closed {
		return false, fmt.Errorf("sqlproxy: cursor %s is closed", c.id)
	}
	var resp types.CursorResponse
	err := c.client.roundTrip(context.Background(), types.Request{
		Command:  types.CommandNextResultSet,
		CursorID: c.id,
	}, &resp, &resp.Status)
	if err != nil {
		return false, err
	}
	c.buf = nil
	c.done = !resp.More
	if resp.More {
		c.columns = resp.Columns
	} else {
		c.columns = nil
	}
	return resp.More, nil
}

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.buf = nil
	var resp types.GeneralResponse
	return c.client.roundTrip(context.Background(), types.Request{
		Command:  types.CommandCloseCursor,
		CursorID: c.id,
	}, &resp, &resp.Status)
}
