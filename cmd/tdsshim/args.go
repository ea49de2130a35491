package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/tomyedwab/tdsshim/paramtype"
	"github.com/tomyedwab/tdsshim/stmt"
)

// parseArg reads one command-line parameter. "type:value" binds value with
// an explicit type (int, bool, str, null, lob); anything else binds as a
// string. A lob value names a file whose contents are bound.
func parseArg(s string) (stmt.TypedArg, error) {
	prefix, value, ok := strings.Cut(s, ":")
	if !ok || prefix == "" {
		return stmt.Typed(s, paramtype.String), nil
	}
	t, err := paramtype.Parse(prefix)
	if err != nil {
		// Not a type prefix, e.g. "10:30".
		return stmt.Typed(s, paramtype.String), nil
	}

	switch t {
	case paramtype.Null:
		return stmt.Typed(nil, t), nil
	case paramtype.LargeObject:
		f, err := os.Open(value)
		if err != nil {
			return stmt.TypedArg{}, fmt.Errorf("failed to open lob file: %w", err)
		}
		return stmt.Typed(f, t), nil
	}
	return stmt.Typed(value, t), nil
}

// parseArgs turns positional parameters and name=value pairs into execute
// arguments.
func parseArgs(positional []string, named []string) ([]any, error) {
	args := make([]any, 0, len(positional)+len(named))
	for _, p := range positional {
		a, err := parseArg(p)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	for _, n := range named {
		name, value, ok := strings.Cut(n, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", n)
		}
		a, err := parseArg(value)
		if err != nil {
			return nil, err
		}
		args = append(args, sql.Named(name, a))
	}
	return args, nil
}
