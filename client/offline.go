package client

import (
	"context"
	"errors"

	"github.com/tomyedwab/tdsshim/paramtype"
)

// ErrOffline is returned by every call that needs a server on an Offline
// client.
var ErrOffline = errors.New("client: offline, no server connection")

// Offline returns a Client that can quote values but not run anything. It
// lets statements be rendered to literal SQL without a database.
func Offline(q Quoter) Client {
	return offline{quoter: q}
}

type offline struct {
	quoter Quoter
}

func (o offline) PrepareAndExecute(context.Context, string, Options, ...any) (Cursor, error) {
	return nil, ErrOffline
}

func (o offline) Exec(context.Context, string, Options, ...any) (Result, error) {
	return Result{}, ErrOffline
}

func (o offline) Quote(value any, t paramtype.Type) string {
	return o.quoter.Quote(value, t)
}

func (o offline) Close() error { return nil }
