// Package paramtype maps bound parameter values to the small set of wire
// types a TDS endpoint understands when values are spliced into SQL text,
// and normalizes each value for its type.
//
// The wire format has no fixed-precision decimal and no boolean, so Coerce
// keeps fractional numbers as float64 and turns booleans into 0/1. Large
// objects must be passed explicitly; Infer never guesses them.
package paramtype
