package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tomyedwab/tdsshim/paramtype"
)

func TestQuoter_Quote(t *testing.T) {
	q := Quoter{}

	tests := []struct {
		name  string
		value any
		typ   paramtype.Type
		want  string
	}{
		{"nil", nil, paramtype.String, "NULL"},
		{"null type", "ignored", paramtype.Null, "NULL"},
		{"integer", int64(42), paramtype.Integer, "42"},
		{"negative", -7, paramtype.Integer, "-7"},
		{"fractional", 4.5, paramtype.Integer, "4.5"},
		{"boolean", int64(1), paramtype.Boolean, "1"},
		{"plain string", "abc", paramtype.String, "'abc'"},
		{"apostrophe", "O'Brien", paramtype.String, "'O''Brien'"},
		{"injection", "x'; DROP TABLE users; --", paramtype.String, "'x''; DROP TABLE users; --'"},
		{"backslash is literal", `a\'b`, paramtype.String, `'a\''b'`},
		{"number as string", 12, paramtype.String, "'12'"},
		{"lob bytes", []byte{0xde, 0xad, 0x01}, paramtype.LargeObject, "0xDEAD01"},
		{"lob empty", []byte{}, paramtype.LargeObject, "0x"},
		{"non-numeric integer falls back to string", "abc", paramtype.Integer, "'abc'"},
		{
			"timestamp",
			time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.UTC),
			paramtype.String,
			"'2024-03-09 14:05:06.789'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, q.Quote(tt.value, tt.typ))
		})
	}
}

func TestQuoter_Unicode(t *testing.T) {
	q := Quoter{Unicode: true}
	assert.Equal(t, "N'Zoë''s'", q.Quote("Zoë's", paramtype.String))
	assert.Equal(t, "3", q.Quote(3, paramtype.Integer))
}

func TestOptions_With(t *testing.T) {
	base := Options{"a": 1}
	next := base.With(OptionOriginalStatement, true)

	assert.True(t, next.Bool(OptionOriginalStatement))
	assert.False(t, base.Bool(OptionOriginalStatement), "With must not mutate the receiver")
	assert.Equal(t, 1, next["a"])
}
