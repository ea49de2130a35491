package stmt

import (
	"context"
	"errors"
	"io"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/paramtype"
)

var errCursorLost = errors.New("results pending on another cursor were discarded")

type fakeRowset struct {
	columns []string
	rows    [][]any
}

// fakeResult scripts what one query returns.
type fakeResult struct {
	sets []fakeRowset
	// probeErrAt makes NextResultSet fail when leaving rowset index
	// probeErrAt-1. Zero disables it.
	probeErrAt int
	probeErr   error
	// fetchErrAfter makes FetchRow fail after that many rows of the first
	// rowset. Zero disables it.
	fetchErrAfter int
	err           error
	noCursor      bool
	// closeErr is returned by the cursor's Close.
	closeErr error
}

type execCall struct {
	query string
	opts  client.Options
	args  []any
}

// fakeClient behaves like a TDS client library: opening a cursor discards
// whatever another cursor had not read yet.
type fakeClient struct {
	quoter  client.Quoter
	results map[string]fakeResult
	calls   []execCall
	execs   []execCall
	open    *fakeCursor
	// strict refuses to advance past a rowset with unread rows.
	strict bool
	closed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{results: make(map[string]fakeResult)}
}

func (f *fakeClient) script(query string, r fakeResult) {
	f.results[query] = r
}

func (f *fakeClient) PrepareAndExecute(_ context.Context, query string, opts client.Options, args ...any) (client.Cursor, error) {
	f.calls = append(f.calls, execCall{query: query, opts: opts, args: args})
	f.clobber()

	r := f.results[query]
	if r.err != nil {
		return nil, r.err
	}
	if r.noCursor {
		return nil, nil
	}
	cur := &fakeCursor{client: f, result: r}
	f.open = cur
	return cur, nil
}

func (f *fakeClient) Exec(_ context.Context, query string, opts client.Options, args ...any) (client.Result, error) {
	f.execs = append(f.execs, execCall{query: query, opts: opts, args: args})
	f.clobber()
	if r, ok := f.results[query]; ok && r.err != nil {
		return client.Result{}, r.err
	}
	return client.Result{RowsAffected: 1}, nil
}

func (f *fakeClient) clobber() {
	if f.open != nil && !f.open.closed {
		f.open.lost = true
	}
	f.open = nil
}

func (f *fakeClient) Quote(value any, t paramtype.Type) string {
	return f.quoter.Quote(value, t)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func (f *fakeClient) lastQuery() string {
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1].query
}

type fakeCursor struct {
	client  *fakeClient
	result  fakeResult
	set     int
	row     int
	fetched int
	closed  bool
	lost    bool
}

func (c *fakeCursor) current() fakeRowset {
	if c.set >= len(c.result.sets) {
		return fakeRowset{}
	}
	return c.result.sets[c.set]
}

func (c *fakeCursor) Columns() []string {
	return c.current().columns
}

func (c *fakeCursor) FetchRow() ([]any, error) {
	if c.lost {
		return nil, errCursorLost
	}
	if c.closed {
		return nil, errors.New("cursor closed")
	}
	if c.set == 0 && c.result.fetchErrAfter > 0 && c.fetched == c.result.fetchErrAfter {
		return nil, errors.New("connection reset")
	}
	set := c.current()
	if c.row >= len(set.rows) {
		return nil, io.EOF
	}
	row := set.rows[c.row]
	c.row++
	c.fetched++
	return row, nil
}

func (c *fakeCursor) NextResultSet() (bool, error) {
	if c.lost {
		return false, errCursorLost
	}
	if c.client.strict && c.row < len(c.current().rows) {
		return false, errors.New("unread rows pending")
	}
	if c.result.probeErrAt > 0 && c.set+1 == c.result.probeErrAt {
		return false, c.result.probeErr
	}
	if c.set+1 >= len(c.result.sets) {
		c.set = len(c.result.sets)
		return false, nil
	}
	c.set++
	c.row = 0
	return true, nil
}

func (c *fakeCursor) Close() error {
	c.closed = true
	return c.result.closeErr
}

func rowsOf(values ...[]any) [][]any { return values }
