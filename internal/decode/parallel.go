// Optional parallel CSV ingestion: value parsing is fanned out over row
// ranges and concatenated back in range order.

package decode

import (
	"io"
	"sync"

	"github.com/tabserve/tabserve/internal/dataset"
)

// MaxWorkers caps the ingestion worker pool.
const MaxWorkers = 8

// DecodeParallel reads a CSV file like Decode but converts records to
// typed values concurrently. Non-CSV formats fall back to Decode: the
// XLSX and Parquet readers are not range-splittable. The produced Dataset
// is identical to the sequential result and is cached as one unit.
func DecodeParallel(path, sheet string, columns []string, workers int) (*dataset.Dataset, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	if format != formatCSV {
		return Decode(path, sheet, columns)
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if workers < 2 {
		return Decode(path, sheet, columns)
	}

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
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	rows := make([][]dataset.Value, len(records))
	chunk := (len(records) + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				rows[i] = proj.row(records[i])
			}
		}(start, end)
	}
	wg.Wait()
	return dataset.New(proj.columns, rows), nil
}
