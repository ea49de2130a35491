package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// output writes command results as text or JSON.
type output struct {
	w      io.Writer
	format string
}

func newOutput(w io.Writer, format string) *output {
	return &output{w: w, format: format}
}

// rowset is one result set as printed by the query command.
type rowset struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (o *output) rendered(template, sql string) error {
	if o.format == "json" {
		return o.json(map[string]string{"template": template, "sql": sql})
	}
	_, err := fmt.Fprintln(o.w, sql)
	return err
}

func (o *output) rowsets(sets []rowset) error {
	if o.format == "json" {
		for i := range sets {
			for _, row := range sets[i].Rows {
				for j, v := range row {
					if b, ok := v.([]byte); ok {
						row[j] = string(b)
					}
				}
			}
		}
		return o.json(map[string]any{"rowsets": sets})
	}

	for i, set := range sets {
		if i > 0 {
			fmt.Fprintln(o.w)
		}
		fmt.Fprintln(o.w, strings.Join(set.Columns, "\t"))
		for _, row := range set.Rows {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = formatCell(v)
			}
			fmt.Fprintln(o.w, strings.Join(cells, "\t"))
		}
	}
	_, err := fmt.Fprintf(o.w, "(%d rowset(s))\n", len(sets))
	return err
}

func (o *output) json(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
