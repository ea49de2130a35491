package types

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// --- JSON structures for host communication ---

// Commands understood by the host.
const (
	CommandExecute       = "execute"
	CommandExec          = "exec"
	CommandFetch         = "fetch"
	CommandNextResultSet = "next_result_set"
	CommandCloseCursor   = "close_cursor"
	CommandCloseConn     = "close_conn"
)

// KindPrepare marks a response error raised before the statement ran.
const KindPrepare = "prepare"

// Request is sent by the client for every command.
type Request struct {
	Command  string         `json:"command"`
	SQL      string         `json:"sql,omitempty"`
	Args     []Arg          `json:"args,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
	CursorID string         `json:"cursor_id,omitempty"`
	// Limit caps the rows returned by a fetch. Zero means the host default.
	Limit int `json:"limit,omitempty"`
}

// Status is embedded in every response.
type Status struct {
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// GeneralResponse answers close_cursor and close_conn.
type GeneralResponse struct {
	Status
}

// CursorResponse answers execute, fetch and next_result_set. Columns is
// set whenever the cursor moved to a new rowset.
type CursorResponse struct {
	Status
	CursorID string   `json:"cursor_id,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	// Rows are JSON-compatible: []byte values travel as strings (base64
	// encoded unless they are valid UTF-8) and time.Time values as RFC 3339
	// strings.
	Rows [][]any `json:"rows,omitempty"`
	// Done reports that the current rowset has no rows left.
	Done bool `json:"done,omitempty"`
	// More answers next_result_set.
	More bool `json:"more,omitempty"`
}

// ExecResponse answers exec.
type ExecResponse struct {
	Status
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
}

// Normalize turns a value decoded with json.Decoder.UseNumber back into an
// int64 or float64. Other values are returned unchanged.
func Normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// Arg is one statement argument. Binary values are base64 encoded and
// flagged so the host binds bytes rather than text. Name is set for
// sql.NamedArg values.
type Arg struct {
	Name   string `json:"name,omitempty"`
	Value  any    `json:"value"`
	Binary bool   `json:"binary,omitempty"`
}

// EncodeArgs prepares client arguments for a Request.
func EncodeArgs(args []any) []Arg {
	if len(args) == 0 {
		return nil
	}
	out := make([]Arg, len(args))
	for i, a := range args {
		var arg Arg
		if na, ok := a.(sql.NamedArg); ok {
			arg.Name = na.Name
			a = na.Value
		}
		if b, ok := a.([]byte); ok {
			arg.Value = base64.StdEncoding.EncodeToString(b)
			arg.Binary = true
		} else {
			arg.Value = a
		}
		out[i] = arg
	}
	return out
}

// DecodeArgs turns Request arguments decoded with UseNumber back into
// client arguments.
func DecodeArgs(args []Arg) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		v := Normalize(arg.Value)
		if arg.Binary {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("arg %d: binary value must be a base64 string", i)
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("arg %d: %w", i, err)
			}
			v = b
		}
		if arg.Name != "" {
			v = sql.Named(arg.Name, v)
		}
		out[i] = v
	}
	return out, nil
}
