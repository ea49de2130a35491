package client

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tomyedwab/tdsshim/paramtype"
)

// TimestampLayout is the literal format used for time.Time values. Both SQL
// Server and ASE accept it for datetime columns.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Quoter renders Go values as Transact-SQL literals. Single quotes are the
// only string delimiter in T-SQL and are escaped by doubling; backslashes
// have no special meaning.
type Quoter struct {
	// Unicode prefixes string literals with N so the server keeps
	// non-Latin characters intact. ASE servers without unichar support
	// should leave it off.
	Unicode bool
}

// Quote implements the Client quoting contract.
func (q Quoter) Quote(value any, t paramtype.Type) string {
	if value == nil || t == paramtype.Null {
		return "NULL"
	}

	switch t {
	case paramtype.Integer, paramtype.Boolean:
		if lit, ok := numberLiteral(value); ok {
			return lit
		}
	case paramtype.LargeObject:
		switch b := value.(type) {
		case []byte:
			return "0x" + strings.ToUpper(hex.EncodeToString(b))
		case string:
			return "0x" + strings.ToUpper(hex.EncodeToString([]byte(b)))
		}
	}

	return q.stringLiteral(stringify(value))
}

func (q Quoter) stringLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 3)
	if q.Unicode {
		b.WriteByte('N')
	}
	b.WriteByte('\'')
	b.WriteString(strings.ReplaceAll(s, "'", "''"))
	b.WriteByte('\'')
	return b.String()
}

func numberLiteral(v any) (string, bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return "1", true
		}
		return "0", true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "NULL", true
		}
		return strconv.FormatFloat(f, 'g', -1, rv.Type().Bits()), true
	}
	return "", false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(TimestampLayout)
	case fmt.Stringer:
		return s.String()
	case bool:
		if s {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(v)
}
