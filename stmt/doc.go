// Package stmt implements emulated prepared statements and cursor
// management on top of a client.Client that can only keep one readable
// cursor open per connection.
//
// EmulatedStatement interpolates its bound parameters into literal SQL
// (see package interpolate) and runs the result through a native
// Statement. Every Statement belongs to a Conn, which tracks the one
// statement whose cursor is live. When another statement executes, the
// live one is drained into a result cache first, so its caller can keep
// fetching (as FetchAssoc rows) without losing data.
//
// After execution a statement skips rowsets without columns, such as the
// row-count notices produced by SET statements or the leading statements
// of a batch, according to the connection's RowsetPolicy.
//
// Typical use:
//
//	conn := stmt.NewConn(cl, stmt.WithLogger(logger))
//	s, err := conn.Prepare("SELECT id, name FROM people WHERE name = ?", nil)
//	if err != nil {
//		return err
//	}
//	if err := s.Execute(ctx, "O'Brien"); err != nil {
//		return err
//	}
//	rows, err := s.FetchAll()
package stmt
