// XLSX decoding via excelize: streamed row iteration, sheet listing,
// metadata-only row counting.

package decode

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/tabserve/tabserve/internal/dataset"
)

func openWorkbook(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, pathError(path, err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", path, err)
	}
	return f, nil
}

// resolveSheet picks the named sheet or defaults to the first one.
func resolveSheet(f *excelize.File, sheet string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if sheet == "" || sheet == dataset.DefaultSheet {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == sheet {
			return s, nil
		}
	}
	return "", fmt.Errorf("sheet %q does not exist", sheet)
}

// decodeXLSX streams rows from the sheet, stopping after limit data rows
// when limit >= 0.
func decodeXLSX(path, sheet string, columns []string, limit int) (*dataset.Dataset, error) {
	f, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name, err := resolveSheet(f, sheet)
	if err != nil {
		return nil, err
	}
	it, err := f.Rows(name)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var proj *projection
	var rows [][]dataset.Value
	for it.Next() {
		record, err := it.Columns()
		if err != nil {
			return nil, err
		}
		if proj == nil {
			if proj, err = newProjection(record, columns); err != nil {
				return nil, err
			}
			continue
		}
		rows = append(rows, proj.row(record))
		if limit >= 0 && len(rows) >= limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if proj == nil {
		return dataset.New(nil, nil), nil
	}
	return dataset.New(proj.columns, rows), nil
}

// countXLSX walks the row iterator without materializing cells.
func countXLSX(path, sheet string) (int, error) {
	f, err := openWorkbook(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	name, err := resolveSheet(f, sheet)
	if err != nil {
		return 0, err
	}
	it, err := f.Rows(name)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	count := -1 // discount the header
	for it.Next() {
		count++
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

func listXLSXSheets(path string) ([]string, error) {
	f, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
