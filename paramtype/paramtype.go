package paramtype

import (
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Type is the resolved wire type of a bound parameter.
type Type int

const (
	// Unknown asks the binder to infer the type from the value.
	Unknown Type = iota
	Null
	Integer
	Boolean
	String
	LargeObject
)

func (t Type) String() string {
	switch t {
	case Null:
		return "null"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case String:
		return "string"
	case LargeObject:
		return "lob"
	default:
		return "unknown"
	}
}

// Parse resolves a type name as produced by String.
func Parse(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "unknown", "auto":
		return Unknown, nil
	case "null":
		return Null, nil
	case "int", "integer":
		return Integer, nil
	case "bool", "boolean":
		return Boolean, nil
	case "str", "string":
		return String, nil
	case "lob", "blob", "binary":
		return LargeObject, nil
	}
	return Unknown, fmt.Errorf("paramtype: unknown type %q", name)
}

// Infer picks a wire type for v. Integer and floating point numbers map to
// Integer, booleans to Boolean, everything else to String. LargeObject is
// never inferred.
func Infer(v any) Type {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Integer
	case bool:
		return Boolean
	}
	return String
}

// Coerce normalizes v for type t. It never fails: values it does not know
// how to convert are returned unchanged. Readers bound as LargeObject are
// left alone here; use Materialize for those.
func Coerce(v any, t Type) any {
	switch t {
	case Null:
		return nil
	case Integer:
		if n, ok := exactInteger(v); ok {
			return n
		}
		f := toFloat(v)
		i := int64(f)
		if f != 0 && float64(i) != f {
			return f
		}
		return i
	case Boolean:
		if truthy(v) {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// Materialize reads r fully. Streams cannot be interpolated into SQL text,
// so LargeObject readers are buffered before they are stored.
func Materialize(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("paramtype: read large object: %w", err)
	}
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
	return b, nil
}

// Resolve combines Infer, Materialize and Coerce the way a bind call does.
func Resolve(v any, t Type) (any, Type, error) {
	if t == Unknown {
		t = Infer(v)
	}
	if t == LargeObject {
		if r, ok := v.(io.Reader); ok {
			b, err := Materialize(r)
			if err != nil {
				return nil, t, err
			}
			return b, t, nil
		}
	}
	return Coerce(v, t), t, nil
}

// exactInteger returns integer kinds, and strings holding a plain integer,
// without a trip through float64. Unsigned values above MaxInt64 keep
// their uint64 type.
func exactInteger(v any) (any, bool) {
	switch n := v.(type) {
	case string:
		return parseInteger(n)
	case []byte:
		return parseInteger(string(n))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return u, true
		}
		return int64(u), true
	}
	return nil, false
}

func parseInteger(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, true
	}
	return nil, false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		return parseLeadingFloat(n)
	case []byte:
		return parseLeadingFloat(string(n))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

// parseLeadingFloat parses the longest numeric prefix of s, so "12abc" is 12
// and "abc" is 0.
func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimRight(s[:end], "eE+-"), 64)
	if err != nil {
		return 0
	}
	return f
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != "" && b != "0"
	case []byte:
		return len(b) > 0 && string(b) != "0"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
