// Package dataset defines the immutable in-memory tabular snapshot shared
// by the decoders, the cache, and the query executor.
//
// A Dataset is created once (by decoding a file or selecting columns from
// another Dataset) and never mutated afterwards. Cache reads hand out deep
// copies so callers cannot corrupt cached state.
package dataset

import (
	"github.com/tabserve/tabserve/internal/taberr"
)

// Dataset is an ordered set of column names plus positionally aligned rows
// of typed scalar values.
type Dataset struct {
	Columns []string
	Rows    [][]Value
}

// New creates a Dataset. The caller hands over ownership of both slices.
func New(columns []string, rows [][]Value) *Dataset {
	return &Dataset{Columns: columns, Rows: rows}
}

// NumRows returns the number of data rows (the header is not a row).
func (d *Dataset) NumRows() int { return len(d.Rows) }

// NumCols returns the number of columns.
func (d *Dataset) NumCols() int { return len(d.Columns) }

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy. Values are immutable so copying the row
// slices is sufficient.
func (d *Dataset) Clone() *Dataset {
	columns := make([]string, len(d.Columns))
	copy(columns, d.Columns)
	rows := make([][]Value, len(d.Rows))
	for i, row := range d.Rows {
		rows[i] = make([]Value, len(row))
		copy(rows[i], row)
	}
	return &Dataset{Columns: columns, Rows: rows}
}

// Select returns a new Dataset restricted to the named columns, in the
// requested order. Returns ColumnNotFound if any name is absent.
func (d *Dataset) Select(columns []string) (*Dataset, error) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		j := d.ColumnIndex(name)
		if j < 0 {
			return nil, taberr.New(taberr.ColumnNotFound, "column %q not found", name)
		}
		idx[i] = j
	}
	rows := make([][]Value, len(d.Rows))
	for r, row := range d.Rows {
		out := make([]Value, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{Columns: cols, Rows: rows}, nil
}

// Head returns a copy of the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	sub := &Dataset{Columns: d.Columns, Rows: d.Rows[:n]}
	return sub.Clone()
}

// Tail returns a copy of the last n rows.
func (d *Dataset) Tail(n int) *Dataset {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	sub := &Dataset{Columns: d.Columns, Rows: d.Rows[len(d.Rows)-n:]}
	return sub.Clone()
}

// ColumnTypes classifies each column by the dominant non-null kind among
// its cells. Columns with no non-null cells classify as "null".
func (d *Dataset) ColumnTypes() map[string]string {
	types := make(map[string]string, len(d.Columns))
	for i, col := range d.Columns {
		counts := map[string]int{}
		for _, row := range d.Rows {
			if i >= len(row) || row[i].IsNull() {
				continue
			}
			counts[row[i].Kind().String()]++
		}
		best, n := "null", 0
		for k, c := range counts {
			if c > n {
				best, n = k, c
			}
		}
		types[col] = best
	}
	return types
}

// Matrix renders the dataset as a header row followed by data rows of
// plain serializable scalars, the shape tool callers receive.
func (d *Dataset) Matrix() [][]any {
	out := make([][]any, 0, len(d.Rows)+1)
	header := make([]any, len(d.Columns))
	for i, c := range d.Columns {
		header[i] = c
	}
	out = append(out, header)
	for _, row := range d.Rows {
		r := make([]any, len(row))
		for i, v := range row {
			r[i] = v.Any()
		}
		out = append(out, r)
	}
	return out
}

// valueOverhead approximates the in-memory cost of one Value beyond its
// string payload.
const valueOverhead = 24

// EstimateBytes approximates the dataset's memory footprint for cache
// accounting. It is an estimate, not an exact accounting.
func (d *Dataset) EstimateBytes() int64 {
	var total int64
	for _, c := range d.Columns {
		total += int64(len(c)) + 16
	}
	for _, row := range d.Rows {
		for _, v := range row {
			total += valueOverhead
			if v.Kind() == KindString {
				total += int64(len(v.String()))
			}
		}
	}
	return total
}
