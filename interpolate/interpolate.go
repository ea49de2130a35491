// Package interpolate renders a SQL template and its bound parameters into
// literal SQL text for endpoints that cannot bind parameters server-side.
package interpolate

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/tomyedwab/tdsshim/paramtype"
)

// Key addresses a bound parameter either by 1-based position (matched
// against `?` markers in order) or by the literal marker text it replaces,
// e.g. ":id" or "@id".
type Key struct {
	Position int
	Name     string
}

// Pos returns a positional key.
func Pos(n int) Key { return Key{Position: n} }

// Named returns a named key. The name is matched verbatim in the template.
func Named(name string) Key { return Key{Name: name} }

// IsNamed reports whether k addresses a named marker.
func (k Key) IsNamed() bool { return k.Name != "" }

func (k Key) String() string {
	if k.IsNamed() {
		return k.Name
	}
	return strconv.Itoa(k.Position)
}

// Param is a coerced value together with its resolved wire type.
type Param struct {
	Value any
	Type  paramtype.Type
}

// Params is a statement's parameter map. Binding the same key twice
// overwrites the earlier value.
type Params map[Key]Param

// QuoteFunc turns a value into SQL literal text that is safe to embed
// directly in a statement.
type QuoteFunc func(value any, t paramtype.Type) string

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Interpolate replaces every `?` whose ordinal is bound and every bound
// named marker in sql with its quoted value. Placeholders without a bound
// value are left as they are; bound values the template never mentions
// are ignored.
func Interpolate(sql string, params Params, quote QuoteFunc) string {
	if len(params) == 0 {
		return sql
	}

	positional := make(map[int]string)
	named := make(map[string]string)
	for k, p := range params {
		lit := quote(p.Value, p.Type)
		if k.IsNamed() {
			named[k.Name] = lit
		} else {
			positional[k.Position] = lit
		}
	}

	pattern := buildPattern(named)
	n := 0
	return pattern.ReplaceAllStringFunc(sql, func(match string) string {
		if match == "?" {
			n++
			if lit, ok := positional[n]; ok {
				return lit
			}
			return match
		}
		if lit, ok := named[match]; ok {
			return lit
		}
		return match
	})
}

// buildPattern builds the alternation `\?|name1|name2...`. Longer names are
// tried first so that ":id" does not match the prefix of ":id2".
func buildPattern(named map[string]string) *regexp.Regexp {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	expr := regexp.QuoteMeta("?")
	for _, name := range names {
		expr += "|" + regexp.QuoteMeta(name)
	}
	return regexp.MustCompile(expr)
}
