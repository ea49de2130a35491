package stmt

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tomyedwab/tdsshim/client"
)

func setupSQLiteConn(t *testing.T) *Conn {
	t.Helper()
	db := sqlx.MustConnect("sqlite3", ":memory:")
	t.Cleanup(func() { db.Close() })

	cl, err := client.NewSQLClient(context.Background(), db)
	require.NoError(t, err)

	c := NewConn(cl, WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	_, err = c.Exec(ctx, "CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT, score REAL)")
	require.NoError(t, err)
	for _, p := range []struct {
		name  string
		score any
	}{{"Ada", 9.5}, {"O'Brien", nil}, {"Grace", 7}} {
		_, err = c.Exec(ctx, "INSERT INTO people (name, score) VALUES (?, ?)", p.name, p.score)
		require.NoError(t, err)
	}
	return c
}

func textValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func TestSQLite_QuotedValueMatchesExactly(t *testing.T) {
	c := setupSQLiteConn(t)

	s := mustExecute(t, c, "SELECT id, name FROM people WHERE name = ?", "O'Brien")
	assert.Equal(t, "SELECT id, name FROM people WHERE name = 'O''Brien'", s.String())

	rows, err := s.FetchAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "O'Brien", textValue(rows[0].Assoc["name"]))
}

func TestSQLite_InjectionAttemptStaysLiteral(t *testing.T) {
	c := setupSQLiteConn(t)

	s := mustExecute(t, c, "SELECT COUNT(*) AS n FROM people WHERE name = :name",
		sql.Named("name", "x' OR '1'='1"))

	v, ok, err := s.FetchColumn(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0, v)
}

func TestSQLite_HandOffBetweenStatements(t *testing.T) {
	c := setupSQLiteConn(t)

	s1 := mustExecute(t, c, "SELECT name FROM people ORDER BY id")
	s2 := mustExecute(t, c, "SELECT score FROM people WHERE score IS NOT NULL ORDER BY score")

	assert.True(t, s1.Statement().Cached())
	assert.Same(t, s2.Statement(), c.Active())

	scores, err := s2.FetchAllAs(ColumnMode(0))
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.EqualValues(t, 7, scores[0].Value)

	rows, err := s1.FetchAll()
	require.NoError(t, err)
	var names []any
	for _, r := range rows {
		names = append(names, textValue(r.Assoc["name"]))
	}
	assert.Equal(t, []any{"Ada", "O'Brien", "Grace"}, names)
}

func TestSQLite_NullAndFloatBinding(t *testing.T) {
	c := setupSQLiteConn(t)

	s := mustExecute(t, c, "SELECT name FROM people WHERE score > ? OR score IS ?", 8.25, nil)
	assert.Equal(t, "SELECT name FROM people WHERE score > 8.25 OR score IS NULL", s.String())

	rows, err := s.FetchAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLite_SyntaxErrorIsExecutionError(t *testing.T) {
	c := setupSQLiteConn(t)

	s, err := c.Prepare("SELECT * FORM people", nil)
	require.NoError(t, err)
	err = s.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindExecution))
}
