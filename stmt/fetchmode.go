package stmt

import "fmt"

// FetchKind selects the shape of fetched rows.
type FetchKind int

const (
	// FetchDefault uses the statement's configured mode.
	FetchDefault FetchKind = iota
	// FetchAssoc returns rows keyed by column name.
	FetchAssoc
	// FetchNum returns rows as values in column order.
	FetchNum
	// FetchBoth fills both the keyed and the ordered form.
	FetchBoth
	// FetchColumn returns a single column of each row.
	FetchColumn
)

func (k FetchKind) String() string {
	switch k {
	case FetchDefault:
		return "default"
	case FetchAssoc:
		return "assoc"
	case FetchNum:
		return "num"
	case FetchBoth:
		return "both"
	case FetchColumn:
		return "column"
	}
	return fmt.Sprintf("FetchKind(%d)", int(k))
}

// FetchMode is a fetch shape together with its argument. Column is only
// meaningful for FetchColumn.
type FetchMode struct {
	Kind   FetchKind
	Column int
}

var (
	Assoc = FetchMode{Kind: FetchAssoc}
	Num   = FetchMode{Kind: FetchNum}
	Both  = FetchMode{Kind: FetchBoth}
)

// ColumnMode fetches the column at index i (0-based).
func ColumnMode(i int) FetchMode {
	return FetchMode{Kind: FetchColumn, Column: i}
}

// Validate checks the kind/argument combination.
func (m FetchMode) Validate() error {
	switch m.Kind {
	case FetchDefault, FetchAssoc, FetchNum, FetchBoth:
		if m.Column != 0 {
			return usageError("fetch mode", fmt.Sprintf("column argument is only valid with %s, got %s", FetchColumn, m.Kind))
		}
	case FetchColumn:
		if m.Column < 0 {
			return usageError("fetch mode", fmt.Sprintf("column index %d is negative", m.Column))
		}
	default:
		return usageError("fetch mode", fmt.Sprintf("unknown fetch kind %d", int(m.Kind)))
	}
	return nil
}

// Row is one fetched row. Which fields are set depends on the mode it was
// fetched with: Assoc for FetchAssoc, Num for FetchNum, both for FetchBoth,
// Value for FetchColumn.
type Row struct {
	Assoc map[string]any
	Num   []any
	Value any
}

func assocRow(columns []string, values []any) map[string]any {
	m := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(values) {
			m[col] = values[i]
		}
	}
	return m
}

func shapeRow(columns []string, values []any, m FetchMode) (Row, error) {
	switch m.Kind {
	case FetchNum:
		return Row{Num: values}, nil
	case FetchBoth:
		return Row{Assoc: assocRow(columns, values), Num: values}, nil
	case FetchColumn:
		if m.Column >= len(values) {
			return Row{}, usageError("fetch", fmt.Sprintf("column index %d out of range (%d columns)", m.Column, len(values)))
		}
		return Row{Value: values[m.Column]}, nil
	}
	return Row{Assoc: assocRow(columns, values)}, nil
}
