// Parquet decoding through Arrow: footer metadata supplies the row count,
// pqarrow materializes the table.

package decode

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/tabserve/tabserve/internal/dataset"
)

func decodeParquet(path string, columns []string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pathError(path, err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("open parquet %q: %w", path, err)
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("arrow reader for %q: %w", path, err)
	}
	table, err := reader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read parquet %q: %w", path, err)
	}
	defer table.Release()

	ds, err := tableToDataset(table)
	if err != nil {
		return nil, err
	}
	if len(columns) > 0 {
		return ds.Select(dataset.NormalizeColumns(columns))
	}
	return ds, nil
}

func countParquet(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, pathError(path, err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return 0, fmt.Errorf("open parquet %q: %w", path, err)
	}
	defer pf.Close()
	return int(pf.NumRows()), nil
}

// tableToDataset flattens an Arrow table into rows of tagged values.
func tableToDataset(table arrow.Table) (*dataset.Dataset, error) {
	numCols := int(table.NumCols())
	numRows := int(table.NumRows())
	columns := make([]string, numCols)
	cells := make([][]dataset.Value, numCols)
	for i := range numCols {
		columns[i] = table.Schema().Field(i).Name
		col := make([]dataset.Value, 0, numRows)
		for _, chunk := range table.Column(i).Data().Chunks() {
			col = appendChunk(col, chunk)
		}
		cells[i] = col
	}
	rows := make([][]dataset.Value, numRows)
	for r := range numRows {
		row := make([]dataset.Value, numCols)
		for c := range numCols {
			if r < len(cells[c]) {
				row[c] = cells[c][r]
			}
		}
		rows[r] = row
	}
	return dataset.New(columns, rows), nil
}

// appendChunk converts one Arrow array chunk into tagged values. Types
// without a direct mapping fall back to their string rendering.
func appendChunk(out []dataset.Value, chunk arrow.Array) []dataset.Value {
	for i := range chunk.Len() {
		if chunk.IsNull(i) {
			out = append(out, dataset.NullValue())
			continue
		}
		switch arr := chunk.(type) {
		case *array.Int8:
			out = append(out, dataset.IntValue(int64(arr.Value(i))))
		case *array.Int16:
			out = append(out, dataset.IntValue(int64(arr.Value(i))))
		case *array.Int32:
			out = append(out, dataset.IntValue(int64(arr.Value(i))))
		case *array.Int64:
			out = append(out, dataset.IntValue(arr.Value(i)))
		case *array.Uint8:
			out = append(out, dataset.IntValue(int64(arr.Value(i))))
		case *array.Uint16:
			out = append(out, dataset.IntValue(int64(arr.Value(i))))
		case *array.Uint32:
			out = append(out, dataset.IntValue(int64(arr.Value(i))))
		case *array.Uint64:
			out = append(out, dataset.IntValue(int64(arr.Value(i))))
		case *array.Float32:
			out = append(out, dataset.FloatValue(float64(arr.Value(i))))
		case *array.Float64:
			out = append(out, dataset.FloatValue(arr.Value(i)))
		case *array.Boolean:
			out = append(out, dataset.BoolValue(arr.Value(i)))
		case *array.String:
			out = append(out, dataset.StringValue(arr.Value(i)))
		case *array.LargeString:
			out = append(out, dataset.StringValue(arr.Value(i)))
		case *array.Timestamp:
			unit := arr.DataType().(*arrow.TimestampType).Unit
			out = append(out, dataset.TimeValue(arr.Value(i).ToTime(unit)))
		case *array.Date32:
			out = append(out, dataset.TimeValue(arr.Value(i).ToTime()))
		case *array.Date64:
			out = append(out, dataset.TimeValue(arr.Value(i).ToTime()))
		default:
			out = append(out, dataset.StringValue(chunk.ValueStr(i)))
		}
	}
	return out
}
