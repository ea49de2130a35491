package remote

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/sqlproxy/host"
	"github.com/tomyedwab/tdsshim/stmt"
)

func setupTestHost(t *testing.T) *host.SQLHost {
	t.Helper()
	db := sqlx.MustConnect("sqlite3", ":memory:")
	t.Cleanup(func() { db.Close() })

	cl, err := client.NewSQLClient(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })

	ctx := context.Background()
	_, err = cl.Exec(ctx, "CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT)", nil)
	require.NoError(t, err)
	for _, name := range []string{"Ada", "O'Brien", "Grace", "Linus", "Barbara"} {
		_, err = cl.Exec(ctx, "INSERT INTO people (name) VALUES (?)", nil, name)
		require.NoError(t, err)
	}
	return host.NewSQLHost(cl)
}

// countingCaller records how many round trips reach the host.
type countingCaller struct {
	host  *host.SQLHost
	calls int
}

func (c *countingCaller) call(ctx context.Context, payload []byte) ([]byte, error) {
	c.calls++
	return c.host.HandleRequest(ctx, payload)
}

func TestClient_FetchesInBatches(t *testing.T) {
	h := setupTestHost(t)
	caller := &countingCaller{host: h}
	cl := New(caller.call, WithFetchSize(2))

	cur, err := cl.PrepareAndExecute(context.Background(), "SELECT id, name FROM people ORDER BY id", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cur.Columns())

	var ids []any
	for {
		row, err := cur.FetchRow()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ids = append(ids, row[0])
	}
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5)}, ids)
	// execute + three fetches (2, 2, 1 rows).
	assert.Equal(t, 4, caller.calls)

	more, err := cur.NextResultSet()
	require.NoError(t, err)
	assert.False(t, more)

	require.NoError(t, cur.Close())
	assert.Equal(t, 0, h.OpenCursors())
}

func TestClient_BinaryAndNamedArgs(t *testing.T) {
	h := setupTestHost(t)
	cl := New(h.HandleRequest)
	ctx := context.Background()

	_, err := cl.Exec(ctx, "CREATE TABLE files (id INTEGER PRIMARY KEY, data BLOB)", nil)
	require.NoError(t, err)
	_, err = cl.Exec(ctx, "INSERT INTO files (id, data) VALUES (:id, :data)", nil,
		sql.Named("id", 7), sql.Named("data", []byte{0x00, 0xFF, 0x41}))
	require.NoError(t, err)

	cur, err := cl.PrepareAndExecute(ctx, "SELECT typeof(data), hex(data) FROM files WHERE id = ?", nil, 7)
	require.NoError(t, err)
	defer cur.Close()

	row, err := cur.FetchRow()
	require.NoError(t, err)
	assert.Equal(t, []any{"blob", "00FF41"}, row)
}

func TestClient_PrepareErrorsKeepTheirKind(t *testing.T) {
	cl := New(setupTestHost(t).HandleRequest)

	_, err := cl.PrepareAndExecute(context.Background(), "", nil)
	assert.ErrorIs(t, err, client.ErrPrepare)

	_, err = cl.PrepareAndExecute(context.Background(), "SELECT * FORM people", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, client.ErrPrepare))
}

func TestClient_CallHostFailure(t *testing.T) {
	boom := errors.New("transport down")
	cl := New(func(context.Context, []byte) ([]byte, error) { return nil, boom })

	_, err := cl.Exec(context.Background(), "DELETE FROM people", nil)
	assert.ErrorIs(t, err, boom)
}

func TestClient_StatementsOverHTTP(t *testing.T) {
	h := setupTestHost(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := stmt.NewConn(New(HTTPCaller(srv.URL, nil), WithFetchSize(1)))
	defer conn.Close()

	ctx := context.Background()
	s1, err := conn.Query(ctx, "SELECT name FROM people WHERE id <= ? ORDER BY id", stmt.Assoc, 3)
	require.NoError(t, err)
	first, ok, err := s1.Fetch()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", first.Assoc["name"])

	res, err := conn.Exec(ctx, "UPDATE people SET name = ? WHERE id = ?", "Ada L.", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	// The first statement was drained before the update ran.
	assert.True(t, s1.Statement().Cached())
	rows, err := s1.FetchAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "O'Brien", rows[0].Assoc["name"])
	assert.Equal(t, 0, h.OpenCursors())
}
