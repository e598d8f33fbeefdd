// Package decode materializes tabular files (CSV/TSV, XLSX, Parquet) into
// Datasets. It is the engine's only collaborator that touches file
// contents; the cache layer above it keys everything on the file's
// modification time.
package decode

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tabserve/tabserve/internal/dataset"
	"github.com/tabserve/tabserve/internal/taberr"
)

// format identifies a supported file format.
type format int

const (
	formatCSV format = iota
	formatXLSX
	formatParquet
)

// detectFormat maps a file extension to its decoder.
func detectFormat(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return formatCSV, nil
	case ".xlsx", ".xlsm":
		return formatXLSX, nil
	case ".parquet":
		return formatParquet, nil
	default:
		return 0, taberr.New(taberr.UnsupportedFormat, "unsupported file format %q", filepath.Ext(path))
	}
}

// Decode reads the whole sheet, optionally restricted to a column
// selection, into a Dataset.
func Decode(path, sheet string, columns []string) (*dataset.Dataset, error) {
	f, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case formatCSV:
		return decodeCSV(path, columns, -1, false)
	case formatXLSX:
		return decodeXLSX(path, sheet, columns, -1)
	default:
		return decodeParquet(path, columns)
	}
}

// DecodeHead reads the first n rows. CSV and XLSX stream and stop early;
// Parquet decodes and truncates.
func DecodeHead(path, sheet string, columns []string, n int) (*dataset.Dataset, error) {
	f, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case formatCSV:
		return decodeCSV(path, columns, n, false)
	case formatXLSX:
		return decodeXLSX(path, sheet, columns, n)
	default:
		ds, err := decodeParquet(path, columns)
		if err != nil {
			return nil, err
		}
		return ds.Head(n), nil
	}
}

// DecodeTail reads the last n rows. CSV keeps a ring buffer over a single
// forward pass; the other formats have no reverse seek and decode fully
// before slicing.
func DecodeTail(path, sheet string, columns []string, n int) (*dataset.Dataset, error) {
	f, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case formatCSV:
		return decodeCSV(path, columns, n, true)
	default:
		ds, err := Decode(path, sheet, columns)
		if err != nil {
			return nil, err
		}
		return ds.Tail(n), nil
	}
}

// CountRows counts data rows without materializing cell values where the
// format permits: CSV scans records, XLSX walks the row iterator, Parquet
// reads the footer metadata.
func CountRows(path, sheet string) (int, error) {
	f, err := detectFormat(path)
	if err != nil {
		return 0, err
	}
	switch f {
	case formatCSV:
		return countCSV(path)
	case formatXLSX:
		return countXLSX(path, sheet)
	default:
		return countParquet(path)
	}
}

// ListSheets returns the sheet identifiers of the file. Single-table
// formats report one pseudo-sheet.
func ListSheets(path string) ([]string, error) {
	f, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	if f == formatXLSX {
		return listXLSXSheets(path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, pathError(path, err)
	}
	return []string{dataset.DefaultSheet}, nil
}

// pathError converts filesystem errors into the engine taxonomy.
func pathError(path string, err error) error {
	if os.IsNotExist(err) {
		return taberr.Wrap(taberr.FileNotFound, err, "file %q not found", path)
	}
	return err
}
