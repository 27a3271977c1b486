package table

// Well-known column names.
const (
	ColumnError   = "error"
	ColumnSuccess = "success"
	ColumnEnabled = "enabled"
	ColumnRows    = "rows"
)

// Project selects and reorders the columns of src.
//
// Output columns are the requested columns in order (or all source columns
// when none are requested), followed by any keep columns that exist in src
// and were not already selected. Requested columns missing from src yield
// null cells. Cells are copied, never shared. When the computed column set
// is empty src is returned as is.
func Project(src *Table, requested []string, keep []string) *Table {
	if src == nil {
		return Empty()
	}

	var cols []string
	seen := make(map[string]struct{})
	add := func(c string) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}

	if len(requested) > 0 {
		for _, c := range requested {
			add(c)
		}
	} else {
		for _, c := range src.columns {
			add(c)
		}
	}
	for _, c := range keep {
		if src.HasColumn(c) {
			add(c)
		}
	}

	if len(cols) == 0 {
		return src
	}

	out := New(cols...)
	sourceIndex := make([]int, len(cols))
	for i, c := range cols {
		sourceIndex[i] = src.ColumnIndex(c)
	}
	for _, row := range src.rows {
		cells := make([]Cell, len(cols))
		for i, j := range sourceIndex {
			if j < 0 {
				cells[i] = Null()
				continue
			}
			cells[i] = row[j]
		}
		out.AddRow(cells...)
	}
	return out
}
