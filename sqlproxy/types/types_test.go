package types

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(42), Normalize(json.Number("42")))
	assert.Equal(t, 4.5, Normalize(json.Number("4.5")))
	assert.Equal(t, uint64(18446744073709551615), Normalize(json.Number("18446744073709551615")))
	assert.Equal(t, "42", Normalize("42"))
	assert.Nil(t, Normalize(nil))
}

func TestStatusFlattensIntoResponses(t *testing.T) {
	var resp CursorResponse
	err := json.Unmarshal([]byte(`{"error":"boom","kind":"prepare","cursor_id":"c1"}`), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "boom", resp.Error)
	assert.Equal(t, KindPrepare, resp.Kind)
	assert.Equal(t, "c1", resp.CursorID)
}

func TestArgs_SurviveJSON(t *testing.T) {
	in := []any{
		int64(9007199254740993),
		"text",
		[]byte{0x00, 0xFF},
		sql.Named("name", "Ada"),
		sql.Named("blob", []byte("raw")),
		nil,
	}
	payload, err := json.Marshal(Request{Command: CommandExec, Args: EncodeArgs(in)})
	require.NoError(t, err)

	var req Request
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&req))

	out, err := DecodeArgs(req.Args)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeArgs_RejectsBadBinary(t *testing.T) {
	_, err := DecodeArgs([]Arg{{Value: "%%%", Binary: true}})
	assert.Error(t, err)

	_, err = DecodeArgs([]Arg{{Value: json.Number("1"), Binary: true}})
	assert.Error(t, err)
}
