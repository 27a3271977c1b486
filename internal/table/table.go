// Package table implements the row/column result model returned by the bridge:
// type-tagged cells, column projection and JSON rendering.
package table

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Table is an ordered set of uniquely named columns and rows of cells.
// Every row holds exactly len(Columns()) cells. A table with no columns
// denotes an empty (no-op) result.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Cell
}

// New creates a table with the given columns. Duplicate column names panic.
func New(columns ...string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c]; dup {
			panic(fmt.Sprintf("table: duplicate column %q", c))
		}
		t.index[c] = i
	}
	return t
}

// Empty returns a table with no columns and no rows.
func Empty() *Table { return New() }

// Single returns a one-row, one-column table.
func Single(column string, value Cell) *Table {
	t := New(column)
	t.AddRow(value)
	return t
}

// Error returns the one-row table carrying an error message.
func Error(message string) *Table { return Single(ColumnError, Text(message)) }

// Success returns the one-row table carrying a success flag.
func Success(ok bool) *Table { return Single(ColumnSuccess, Bool(ok)) }

// AddRow appends a row. The number of cells must match the number of columns.
func (t *Table) AddRow(cells ...Cell) {
	if len(cells) != len(t.columns) {
		panic(fmt.Sprintf("table: row has %d cells, want %d", len(cells), len(t.columns)))
	}
	row := make([]Cell, len(cells))
	for i, c := range cells {
		row[i] = c.Clone()
	}
	t.rows = append(t.rows, row)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// IsEmpty reports whether the table has no columns.
func (t *Table) IsEmpty() bool { return len(t.columns) == 0 }

// ColumnIndex returns the position of column, or -1.
func (t *Table) ColumnIndex(column string) int {
	if i, ok := t.index[column]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []Cell {
	out := make([]Cell, len(t.rows[i]))
	for j, c := range t.rows[i] {
		out[j] = c.Clone()
	}
	return out
}

// Value returns the cell at row i in the named column.
func (t *Table) Value(i int, column string) (Cell, bool) {
	j, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return Null(), false
	}
	return t.rows[i][j].Clone(), true
}

// ErrorMessage returns the first row's error text, if the table carries one.
func (t *Table) ErrorMessage() (string, bool) {
	if t.NumRows() == 0 {
		return "", false
	}
	c, ok := t.Value(0, ColumnError)
	if !ok {
		return "", false
	}
	return c.Text()
}

// MarshalJSON encodes the table as {"columns":[...],"rows":[[...],...]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := t.rows
	if rows == nil {
		rows = [][]Cell{}
	}
	return json.Marshal(struct {
		Columns []string `json:"columns"`
		Rows    [][]Cell `json:"rows"`
	}{
		Columns: t.Columns(),
		Rows:    rows,
	})
}

// String renders the table as tab separated text with a header line.
func (t *Table) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.columns, "\t"))
	for _, row := range t.rows {
		b.WriteByte('\n')
		for j, c := range row {
			if j > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(c.String())
		}
	}
	return b.String()
}
