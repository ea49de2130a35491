package client

import (
	"context"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/tdsshim/paramtype"
)

func setupTestClient(t *testing.T) *SQLClient {
	t.Helper()
	db := sqlx.MustConnect("sqlite3", ":memory:")
	t.Cleanup(func() { db.Close() })

	c, err := NewSQLClient(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	_, err = c.Exec(ctx, "CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT)", nil)
	require.NoError(t, err)
	for _, name := range []string{"Ada", "O'Brien", "Grace"} {
		_, err = c.Exec(ctx, "INSERT INTO people (name) VALUES ("+c.Quote(name, paramtype.String)+")", nil)
		require.NoError(t, err)
	}
	return c
}

func text(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func TestSQLClient_CursorReadsRows(t *testing.T) {
	c := setupTestClient(t)

	cur, err := c.PrepareAndExecute(context.Background(), "SELECT id, name FROM people ORDER BY id", nil)
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, []string{"id", "name"}, cur.Columns())

	var names []any
	for {
		row, err := cur.FetchRow()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, text(row[1]))
	}
	assert.Equal(t, []any{"Ada", "O'Brien", "Grace"}, names)

	more, err := cur.NextResultSet()
	require.NoError(t, err)
	assert.False(t, more)
}

func TestSQLClient_QuotedLiteralMatchesExactly(t *testing.T) {
	c := setupTestClient(t)

	query := "SELECT name FROM people WHERE name = " + c.Quote("O'Brien", paramtype.String)
	cur, err := c.PrepareAndExecute(context.Background(), query, nil)
	require.NoError(t, err)
	defer cur.Close()

	row, err := cur.FetchRow()
	require.NoError(t, err)
	assert.Equal(t, "O'Brien", text(row[0]))

	_, err = cur.FetchRow()
	assert.Equal(t, io.EOF, err)
}

func TestSQLClient_ExecReportsRowsAffected(t *testing.T) {
	c := setupTestClient(t)

	res, err := c.Exec(context.Background(), "UPDATE people SET name = 'x' WHERE id > 1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)
}

func TestSQLClient_EmptyQueryIsPrepareError(t *testing.T) {
	c := setupTestClient(t)

	_, err := c.PrepareAndExecute(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrPrepare)
}

func TestSQLClient_SyntaxErrorSurfaces(t *testing.T) {
	c := setupTestClient(t)

	_, err := c.PrepareAndExecute(context.Background(), "SELEC nonsense", nil)
	assert.Error(t, err)
}
