package stmt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCache_ErrorWaitsForLastRowset(t *testing.T) {
	boom := errors.New("boom")
	c := &resultCache{
		sets: []cachedRowset{
			{columns: []string{"a"}, rows: []map[string]any{{"a": 1}}},
			{columns: []string{"b"}, rows: []map[string]any{{"b": 2}}},
		},
		err: boom,
	}
	assert.Equal(t, 2, c.len())

	row, ok, err := c.next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, row["a"])

	_, ok, err = c.next()
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, c.nextRowset())
	assert.Equal(t, []string{"b"}, c.columns())

	rows, err := c.takeAll()
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rows, 1)

	// Reported once.
	_, ok, err = c.next()
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, c.nextRowset())
	assert.Nil(t, c.columns())
}
