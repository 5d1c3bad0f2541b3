package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Table lays out rows in aligned columns for text output.
type Table struct {
	headers []string
	rows    [][]string
	indent  string
	gap     string
}

// NewTable creates a table with the given column headers.
// A table without headers prints rows only.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, gap: "  "}
}

// AddRow appends a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// SetIndent prefixes every line with indent.
func (t *Table) SetIndent(indent string) {
	t.indent = indent
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}

	widths := t.widths()

	if len(t.headers) > 0 {
		if err := t.line(w, t.headers, widths); err != nil {
			return err
		}
		rules := make([]string, len(widths))
		for i, n := range widths {
			rules[i] = strings.Repeat("-", n)
		}
		if err := t.line(w, rules, widths); err != nil {
			return err
		}
	}

	for _, row := range t.rows {
		if err := t.line(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

// String returns the rendered table.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

// widths measures each column in runes so amounts with symbols stay aligned.
func (t *Table) widths() []int {
	cols := len(t.headers)
	for _, row := range t.rows {
		cols = max(cols, len(row))
	}

	widths := make([]int, cols)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	return widths
}

func (t *Table) line(w io.Writer, cells []string, widths []int) error {
	var sb strings.Builder
	sb.WriteString(t.indent)
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i > 0 {
			sb.WriteString(t.gap)
		}
		sb.WriteString(cell)
		sb.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(cell)))
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	return err
}
