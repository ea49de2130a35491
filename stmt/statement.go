package stmt

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/interpolate"
	"github.com/tomyedwab/tdsshim/paramtype"
)

// Statement runs SQL on its connection and reads the resulting cursor. It
// takes part in the connection's cursor hand-off: when another statement
// executes while this one still has unread rows, those rows move into a
// result cache and later fetches are served from there.
type Statement struct {
	conn   *Conn
	id     string
	sql    string
	opts   client.Options
	params interpolate.Params
	mode   FetchMode

	cursor   client.Cursor
	cache    *resultCache
	executed bool
	closed   bool
}

func newStatement(c *Conn, query string, opts client.Options) *Statement {
	return &Statement{
		conn:   c,
		id:     uuid.NewString(),
		sql:    query,
		opts:   opts,
		params: make(interpolate.Params),
		mode:   Assoc,
	}
}

// ID identifies the statement in log output.
func (s *Statement) ID() string { return s.id }

// String returns the statement's SQL text.
func (s *Statement) String() string { return s.sql }

// Bind binds v under key with an inferred type.
func (s *Statement) Bind(key interpolate.Key, v any) error {
	return s.BindType(key, v, paramtype.Unknown)
}

// BindType binds v under key as type t, replacing any earlier value.
func (s *Statement) BindType(key interpolate.Key, v any, t paramtype.Type) error {
	value, typ, err := paramtype.Resolve(v, t)
	if err != nil {
		return newError(KindUsage, "bind", "cannot bind "+key.String(), err)
	}
	s.params[key] = interpolate.Param{Value: value, Type: typ}
	return nil
}

// SetFetchMode sets the shape used by Fetch and FetchAll.
func (s *Statement) SetFetchMode(m FetchMode) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Kind == FetchDefault {
		m = Assoc
	}
	s.mode = m
	return nil
}

// Execute runs the statement with any bound parameters plus args. The
// statement holding the connection's cursor is drained first. After the
// call the statement sits on its first rowset that has columns.
func (s *Statement) Execute(ctx context.Context, args ...any) error {
	if s.closed {
		return usageError("execute", "statement is closed")
	}
	if err := s.conn.checkOpen("execute"); err != nil {
		return err
	}
	if err := s.conn.bindArgs(args, s.BindType); err != nil {
		return err
	}

	s.conn.handOff(s)
	s.discard()

	cur, err := s.conn.client.PrepareAndExecute(ctx, s.sql, s.opts, s.nativeArgs()...)
	if err != nil {
		return executionError("execute", err)
	}
	if cur == nil {
		return newError(KindPrepare, "execute", "client returned no cursor", nil)
	}
	s.cursor = cur
	s.executed = true
	s.conn.activate(s)

	skipped, err := skipEmptyRowsets(cur, s.conn.policy, s.conn.logger)
	s.conn.logger.Debug("executed statement",
		zap.String("stmt", s.id),
		zap.Int("sql_len", len(s.sql)),
		zap.Int("empty_rowsets_skipped", skipped),
	)
	if err != nil {
		return newError(KindExecution, "execute", "advance past empty rowset", err)
	}
	return nil
}

// Fetch returns the next row in the statement's fetch mode. ok is false
// when the rowset is exhausted.
func (s *Statement) Fetch() (Row, bool, error) {
	return s.FetchAs(FetchMode{})
}

// FetchAs returns the next row shaped by m. Rows held in the result cache
// can only be fetched as FetchAssoc.
func (s *Statement) FetchAs(m FetchMode) (Row, bool, error) {
	m, err := s.resolveMode("fetch", m)
	if err != nil {
		return Row{}, false, err
	}

	if s.cache != nil {
		if m.Kind != FetchAssoc {
			return Row{}, false, cachedShapeError("fetch", m)
		}
		row, ok, err := s.cache.next()
		if err != nil {
			return Row{}, false, newError(KindExecution, "fetch", "read cached rows", err)
		}
		return Row{Assoc: row}, ok, nil
	}

	if s.cursor == nil {
		return Row{}, false, nil
	}
	if err := checkColumn("fetch", m, s.cursor.Columns()); err != nil {
		return Row{}, false, err
	}
	values, err := s.cursor.FetchRow()
	if err == io.EOF {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, newError(KindExecution, "fetch", "read row", err)
	}
	row, err := shapeRow(s.cursor.Columns(), values, m)
	if err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// FetchAll returns the remaining rows of the current rowset.
func (s *Statement) FetchAll() ([]Row, error) {
	return s.FetchAllAs(FetchMode{})
}

// FetchAllAs returns the remaining rows of the current rowset shaped by m.
func (s *Statement) FetchAllAs(m FetchMode) ([]Row, error) {
	m, err := s.resolveMode("fetch all", m)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if m.Kind != FetchAssoc {
			return nil, cachedShapeError("fetch all", m)
		}
		cached, err := s.cache.takeAll()
		rows := make([]Row, 0, len(cached))
		for _, r := range cached {
			rows = append(rows, Row{Assoc: r})
		}
		if err != nil {
			return rows, newError(KindExecution, "fetch all", "read cached rows", err)
		}
		return rows, nil
	}

	var rows []Row
	for {
		row, ok, err := s.FetchAs(m)
		if err != nil {
			return rows, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// FetchColumn returns column i (0-based) of the next row.
func (s *Statement) FetchColumn(i int) (any, bool, error) {
	if i < 0 {
		return nil, false, usageError("fetch column", fmt.Sprintf("column index %d is negative", i))
	}
	if err := s.checkExecuted("fetch column"); err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		cols := s.cache.columns()
		if err := checkColumn("fetch column", ColumnMode(i), cols); err != nil {
			return nil, false, err
		}
		row, ok, err := s.cache.next()
		if err != nil {
			return nil, false, newError(KindExecution, "fetch column", "read cached rows", err)
		}
		if !ok {
			return nil, false, nil
		}
		return row[cols[i]], true, nil
	}

	row, ok, err := s.FetchAs(ColumnMode(i))
	return row.Value, ok, err
}

// Columns returns the column names of the current rowset.
func (s *Statement) Columns() []string {
	if s.cache != nil {
		return s.cache.columns()
	}
	if s.cursor != nil {
		return s.cursor.Columns()
	}
	return nil
}

// ColumnCount returns the number of columns in the current rowset.
func (s *Statement) ColumnCount() int {
	return len(s.Columns())
}

// NextRowset moves to the next rowset, returning false when there is none.
func (s *Statement) NextRowset() (bool, error) {
	if err := s.checkExecuted("next rowset"); err != nil {
		return false, err
	}
	if s.cache != nil {
		return s.cache.nextRowset(), nil
	}
	if s.cursor == nil {
		return false, nil
	}
	more, err := s.cursor.NextResultSet()
	if err != nil {
		return false, newError(KindExecution, "next rowset", "advance rowset", err)
	}
	return more, nil
}

// Cached reports whether fetches are being served from the result cache.
func (s *Statement) Cached() bool { return s.cache != nil }

// CloseCursor drops the cursor and any cached rows so the statement can be
// executed again. It also frees the connection's cursor slot.
func (s *Statement) CloseCursor() error {
	s.conn.release(s)
	s.cache = nil
	if s.cursor == nil {
		return nil
	}
	err := s.cursor.Close()
	s.cursor = nil
	if err != nil {
		return newError(KindExecution, "close cursor", "close cursor", err)
	}
	return nil
}

// Close closes the cursor and makes the statement unusable.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.CloseCursor()
}

// drain moves every unread row of every remaining rowset into the result
// cache and closes the cursor.
func (s *Statement) drain() {
	if s.cursor == nil {
		return
	}
	cache := &resultCache{}
	cur := s.cursor
	for {
		set := cachedRowset{columns: cur.Columns()}
		for {
			values, err := cur.FetchRow()
			if err == io.EOF {
				break
			}
			if err != nil {
				cache.err = err
				break
			}
			set.rows = append(set.rows, assocRow(set.columns, values))
		}
		cache.sets = append(cache.sets, set)
		if cache.err != nil {
			break
		}

		more, err := cur.NextResultSet()
		if err != nil {
			if !s.conn.policy.StopOnProbeError {
				cache.err = err
			}
			break
		}
		if !more {
			break
		}
	}

	if err := cur.Close(); err != nil {
		s.conn.logger.Debug("close drained cursor", zap.String("stmt", s.id), zap.Error(err))
	}
	s.cursor = nil
	s.cache = cache
	s.conn.logger.Debug("cached unread rows of displaced statement",
		zap.String("stmt", s.id),
		zap.Int("rows", cache.len()),
		zap.Int("rowsets", len(cache.sets)),
	)
}

// discard drops results left over from a previous execution.
func (s *Statement) discard() {
	s.cache = nil
	if s.cursor != nil {
		if err := s.cursor.Close(); err != nil {
			s.conn.logger.Debug("close previous cursor", zap.String("stmt", s.id), zap.Error(err))
		}
		s.cursor = nil
	}
}

func (s *Statement) resolveMode(op string, m FetchMode) (FetchMode, error) {
	if err := m.Validate(); err != nil {
		return m, err
	}
	if err := s.checkExecuted(op); err != nil {
		return m, err
	}
	if m.Kind == FetchDefault {
		m = s.mode
	}
	return m, nil
}

func (s *Statement) checkExecuted(op string) error {
	if s.closed {
		return usageError(op, "statement is closed")
	}
	if !s.executed {
		return usageError(op, "statement has not been executed")
	}
	return nil
}

// nativeArgs orders bound parameters for the client: positional values by
// position, then named values as sql.NamedArg without their marker.
func (s *Statement) nativeArgs() []any {
	if len(s.params) == 0 {
		return nil
	}
	var positions []int
	var names []string
	for k := range s.params {
		if k.IsNamed() {
			names = append(names, k.Name)
		} else {
			positions = append(positions, k.Position)
		}
	}
	sort.Ints(positions)
	sort.Strings(names)

	args := make([]any, 0, len(s.params))
	for _, p := range positions {
		args = append(args, s.params[interpolate.Pos(p)].Value)
	}
	for _, n := range names {
		args = append(args, sql.Named(strings.TrimLeft(n, ":@"), s.params[interpolate.Named(n)].Value))
	}
	return args
}

// checkColumn rejects a column fetch past the end of the current rowset
// before any row is taken. A rowset without columns has no rows to take.
func checkColumn(op string, m FetchMode, columns []string) error {
	if m.Kind != FetchColumn || len(columns) == 0 || m.Column < len(columns) {
		return nil
	}
	return usageError(op, fmt.Sprintf("column index %d out of range (%d columns)", m.Column, len(columns)))
}

func cachedShapeError(op string, m FetchMode) *Error {
	return usageError(op, fmt.Sprintf("result caching is only implemented for %s fetches, got %s", FetchAssoc, m.Kind))
}
