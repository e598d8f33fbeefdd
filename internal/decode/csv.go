// CSV/TSV decoding: streamed reads, ring-buffered tail, record counting.

package decode

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tabserve/tabserve/internal/dataset"
	"github.com/tabserve/tabserve/internal/taberr"
)

func openCSV(path string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, pathError(path, err)
	}
	r := csv.NewReader(f)
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	return f, r, nil
}

// projection maps requested columns to their source indexes. An empty
// request keeps every column.
type projection struct {
	columns []string
	idx     []int
}

func newProjection(header, requested []string) (*projection, error) {
	if len(requested) == 0 {
		idx := make([]int, len(header))
		for i := range header {
			idx[i] = i
		}
		return &projection{columns: header, idx: idx}, nil
	}
	cols := dataset.NormalizeColumns(requested)
	idx := make([]int, len(cols))
	for i, name := range cols {
		idx[i] = -1
		for j, h := range header {
			if h == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, taberr.New(taberr.ColumnNotFound, "column %q not found", name)
		}
	}
	return &projection{columns: cols, idx: idx}, nil
}

func (p *projection) row(record []string) []dataset.Value {
	row := make([]dataset.Value, len(p.idx))
	for i, j := range p.idx {
		if j < len(record) {
			row[i] = dataset.ParseValue(record[j])
		} else {
			row[i] = dataset.NullValue()
		}
	}
	return row
}

// decodeCSV reads up to limit rows (limit < 0 means all). With tail set it
// keeps only the last limit rows, in one forward pass.
func decodeCSV(path string, columns []string, limit int, tail bool) (*dataset.Dataset, error) {
	f, r, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if err == io.EOF {
		return dataset.New(nil, nil), nil
	}
	if err != nil {
		return nil, err
	}
	proj, err := newProjection(header, columns)
	if err != nil {
		return nil, err
	}

	var rows [][]dataset.Value
	var ringFull bool
	next := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := proj.row(record)
		switch {
		case tail && limit >= 0:
			if limit == 0 {
				continue
			}
			if len(rows) < limit {
				rows = append(rows, row)
			} else {
				rows[next] = row
				ringFull = true
			}
			next = (next + 1) % limit
		default:
			rows = append(rows, row)
			if limit >= 0 && len(rows) >= limit {
				return dataset.New(proj.columns, rows), nil
			}
		}
	}
	if ringFull && next != 0 {
		// Rotate the ring buffer back into file order.
		rows = append(rows[next:], rows[:next]...)
	}
	return dataset.New(proj.columns, rows), nil
}

// countCSV counts data records. csv.Reader handles quoted newlines, which
// a raw line scan would miscount.
func countCSV(path string) (int, error) {
	f, r, err := openCSV(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r.ReuseRecord = true

	count := -1 // discount the header
	for {
		if _, err := r.Read(); err == io.EOF {
			break
		} else if err != nil {
			return 0, err
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}
