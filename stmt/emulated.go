package stmt

import (
	"context"

	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/interpolate"
	"github.com/tomyedwab/tdsshim/paramtype"
)

// EmulatedStatement mimics server-side parameter binding. Bound values are
// quoted and spliced into the SQL text at execute time, and the literal
// text is run through a native Statement.
type EmulatedStatement struct {
	conn   *Conn
	sql    string
	opts   client.Options
	params interpolate.Params

	stmt *Statement
	// mode is kept across executions. It also covers the case where the
	// fetch mode is set before any cursor exists.
	mode *FetchMode
}

// Bind binds v under key with an inferred type.
func (e *EmulatedStatement) Bind(key interpolate.Key, v any) error {
	return e.BindType(key, v, paramtype.Unknown)
}

// BindType binds v under key as type t, replacing any earlier value.
// Readers bound as paramtype.LargeObject are read fully.
func (e *EmulatedStatement) BindType(key interpolate.Key, v any, t paramtype.Type) error {
	value, typ, err := paramtype.Resolve(v, t)
	if err != nil {
		return newError(KindUsage, "bind", "cannot bind "+key.String(), err)
	}
	e.params[key] = interpolate.Param{Value: value, Type: typ}
	return nil
}

// Params returns a copy of the bound parameters.
func (e *EmulatedStatement) Params() interpolate.Params {
	return e.params.Clone()
}

// String renders the SQL with the current parameters interpolated. It is
// recomputed on every call.
func (e *EmulatedStatement) String() string {
	return interpolate.Interpolate(e.sql, e.params, e.conn.Quote)
}

// Template returns the SQL text as prepared.
func (e *EmulatedStatement) Template() string { return e.sql }

// BindArgs binds args the way Execute does: plain values by position from
// 1, sql.NamedArg values by name, TypedArg with its explicit type.
func (e *EmulatedStatement) BindArgs(args ...any) error {
	return e.conn.bindArgs(args, e.BindType)
}

// Execute binds args (see BindArgs), interpolates, and runs the literal
// SQL.
func (e *EmulatedStatement) Execute(ctx context.Context, args ...any) error {
	if err := e.BindArgs(args...); err != nil {
		return err
	}

	if e.stmt != nil {
		if err := e.stmt.Close(); err != nil {
			e.conn.logger.Debug("close previous execution", zap.String("stmt", e.stmt.id), zap.Error(err))
		}
		e.stmt = nil
	}

	native, err := e.conn.PrepareNative(e.String(), e.opts.With(client.OptionOriginalStatement, true))
	if err != nil {
		return err
	}
	if e.mode != nil {
		if err := native.SetFetchMode(*e.mode); err != nil {
			return err
		}
	}
	e.stmt = native
	return native.Execute(ctx)
}

// Exec binds args, interpolates, and runs the SQL without reading rows.
func (e *EmulatedStatement) Exec(ctx context.Context, args ...any) (client.Result, error) {
	if err := e.BindArgs(args...); err != nil {
		return client.Result{}, err
	}
	return e.conn.exec(ctx, e.String(), e.opts.With(client.OptionOriginalStatement, true))
}

// SetFetchMode sets the default fetch shape. It applies to the live cursor
// and to every later execution.
func (e *EmulatedStatement) SetFetchMode(m FetchMode) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Kind == FetchDefault {
		m = Assoc
	}
	e.mode = &m
	if e.stmt != nil {
		return e.stmt.SetFetchMode(m)
	}
	return nil
}

// Statement returns the native statement of the latest execution.
func (e *EmulatedStatement) Statement() *Statement { return e.stmt }

// Fetch returns the next row in the configured fetch mode.
func (e *EmulatedStatement) Fetch() (Row, bool, error) {
	s, err := e.live("fetch")
	if err != nil {
		return Row{}, false, err
	}
	return s.Fetch()
}

// FetchAs returns the next row shaped by m.
func (e *EmulatedStatement) FetchAs(m FetchMode) (Row, bool, error) {
	s, err := e.live("fetch")
	if err != nil {
		return Row{}, false, err
	}
	return s.FetchAs(m)
}

// FetchAll returns the remaining rows of the current rowset.
func (e *EmulatedStatement) FetchAll() ([]Row, error) {
	s, err := e.live("fetch all")
	if err != nil {
		return nil, err
	}
	return s.FetchAll()
}

// FetchAllAs returns the remaining rows of the current rowset shaped by m.
func (e *EmulatedStatement) FetchAllAs(m FetchMode) ([]Row, error) {
	s, err := e.live("fetch all")
	if err != nil {
		return nil, err
	}
	return s.FetchAllAs(m)
}

// FetchColumn returns column i of the next row.
func (e *EmulatedStatement) FetchColumn(i int) (any, bool, error) {
	s, err := e.live("fetch column")
	if err != nil {
		return nil, false, err
	}
	return s.FetchColumn(i)
}

// Columns returns the column names of the current rowset.
func (e *EmulatedStatement) Columns() []string {
	if e.stmt == nil {
		return nil
	}
	return e.stmt.Columns()
}

// ColumnCount returns the number of columns in the current rowset.
func (e *EmulatedStatement) ColumnCount() int {
	return len(e.Columns())
}

// NextRowset moves to the next rowset.
func (e *EmulatedStatement) NextRowset() (bool, error) {
	s, err := e.live("next rowset")
	if err != nil {
		return false, err
	}
	return s.NextRowset()
}

// CloseCursor releases the cursor of the latest execution.
func (e *EmulatedStatement) CloseCursor() error {
	if e.stmt == nil {
		return nil
	}
	return e.stmt.CloseCursor()
}

// Close releases the statement.
func (e *EmulatedStatement) Close() error {
	if e.stmt == nil {
		return nil
	}
	err := e.stmt.Close()
	e.stmt = nil
	return err
}

func (e *EmulatedStatement) live(op string) (*Statement, error) {
	if e.stmt == nil {
		return nil, usageError(op, "statement has not been executed")
	}
	return e.stmt, nil
}
