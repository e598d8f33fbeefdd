package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tabserve/tabserve/internal/dataset"
	"github.com/tabserve/tabserve/internal/query"
	"github.com/tabserve/tabserve/internal/taberr"
)

const salesCSV = "region,sales,rep\neast,5,ann\nwest,20,bob\neast,10,ann\n"

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func testAccessor(t *testing.T, path string) *FileAccessor {
	t.Helper()
	a, err := newFileAccessor(path, AccessorOptions{MaxCacheEntries: 10}, slog.Default())
	if err != nil {
		t.Fatalf("newFileAccessor failed: %v", err)
	}
	return a
}

func TestAccessorMissingFile(t *testing.T) {
	_, err := newFileAccessor(filepath.Join(t.TempDir(), "missing.csv"), AccessorOptions{}, slog.Default())
	if !taberr.IsKind(err, taberr.FileNotFound) {
		t.Errorf("error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestAccessorCacheHit(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	first, err := a.Read("", nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	second, err := a.Read("", nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if first.NumRows() != 3 || second.NumRows() != 3 {
		t.Fatalf("reads returned %d and %d rows, want 3", first.NumRows(), second.NumRows())
	}

	info := a.CacheInfo()
	if info.Hits != 1 || info.Misses != 1 {
		t.Errorf("counters = %d hits, %d misses, want 1 and 1", info.Hits, info.Misses)
	}
	if info.DataEntries != 1 {
		t.Errorf("entries = %d, want 1", info.DataEntries)
	}
}

func TestAccessorReturnsCopies(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	ds, err := a.Read("", nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	ds.Rows[0][1] = dataset.IntValue(-1)

	again, err := a.Read("", nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !dataset.Equal(again.Rows[0][1], dataset.IntValue(5)) {
		t.Error("mutating a returned dataset corrupted the cache")
	}
}

func TestAccessorMtimeInvalidation(t *testing.T) {
	path := writeCSV(t, salesCSV)
	a := testAccessor(t, path)

	if _, err := a.Read("", nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// Rewrite the file and bump its mtime well past filesystem resolution.
	if err := os.WriteFile(path, []byte("region,sales,rep\nnorth,7,cat\n"), 0o600); err != nil {
		t.Fatalf("rewriting fixture: %v", err)
	}
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ds, err := a.Read("", nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if ds.NumRows() != 1 || !dataset.Equal(ds.Rows[0][0], dataset.StringValue("north")) {
		t.Errorf("read after modification = %v", ds.Rows)
	}
	info := a.CacheInfo()
	if info.Misses != 2 {
		t.Errorf("misses = %d, want 2 (initial and post-modification)", info.Misses)
	}
}

func TestAccessorDerivedHit(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	if _, err := a.Read("", nil); err != nil {
		t.Fatalf("full read failed: %v", err)
	}
	sub, err := a.Read("", []string{"sales"})
	if err != nil {
		t.Fatalf("column read failed: %v", err)
	}

	info := a.CacheInfo()
	if info.Hits != 1 || info.Misses != 1 {
		t.Errorf("counters = %d hits, %d misses, want derived hit counted as hit", info.Hits, info.Misses)
	}
	if info.DataEntries != 2 {
		t.Errorf("entries = %d, want 2 (full plus derived subset)", info.DataEntries)
	}
	if sub.NumCols() != 1 || !dataset.Equal(sub.Rows[1][0], dataset.IntValue(20)) {
		t.Errorf("derived subset = %v", sub.Rows)
	}

	// The derived entry now serves exact hits on the same selection, any
	// column order.
	if _, err := a.Read("", []string{"sales"}); err != nil {
		t.Fatalf("repeat column read failed: %v", err)
	}
	if got := a.CacheInfo().Hits; got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
}

func TestAccessorDerivedMissOnUnknownColumn(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))
	if _, err := a.Read("", nil); err != nil {
		t.Fatalf("full read failed: %v", err)
	}
	_, err := a.Read("", []string{"ghost"})
	if !taberr.IsKind(err, taberr.ColumnNotFound) {
		t.Errorf("error = %v, want COLUMN_NOT_FOUND", err)
	}
}

func TestAccessorQuery(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	t.Run("aggregates", func(t *testing.T) {
		res, err := a.Query(&query.Plan{GroupBy: "region", Agg: query.AggSum, AggColumn: "sales"}, "", nil)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		want := map[string]int64{"east": 15, "west": 20}
		for i := range res.Rows {
			label := res.Labels[i].String()
			if !dataset.Equal(res.Values[i], dataset.IntValue(want[label])) {
				t.Errorf("sum(%s) = %v, want %d", label, res.Values[i], want[label])
			}
		}
	})

	t.Run("rejects plans without aggregation before touching data", func(t *testing.T) {
		_, err := a.Query(&query.Plan{}, "", nil)
		if !taberr.IsKind(err, taberr.AggregationError) {
			t.Errorf("error = %v, want AGGREGATION_ERROR", err)
		}
	})
}

func TestAccessorHeadTailBypassCache(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	head, err := a.ReadHead(2, "", nil)
	if err != nil {
		t.Fatalf("ReadHead failed: %v", err)
	}
	tail, err := a.ReadTail(2, "", nil)
	if err != nil {
		t.Fatalf("ReadTail failed: %v", err)
	}
	if head.NumRows() != 2 || tail.NumRows() != 2 {
		t.Errorf("head %d rows, tail %d rows, want 2 and 2", head.NumRows(), tail.NumRows())
	}
	info := a.CacheInfo()
	if info.DataEntries != 0 || info.Hits != 0 || info.Misses != 0 {
		t.Errorf("head/tail touched the cache: %+v", info)
	}
}

func TestAccessorRowCount(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	n, err := a.RowCount("")
	if err != nil || n != 3 {
		t.Fatalf("RowCount = %d, %v, want 3", n, err)
	}
	// Second call is served by the row-count index.
	if _, err := a.RowCount(""); err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	info := a.CacheInfo()
	if info.Hits != 1 || info.Misses != 1 || info.RowCountEntries != 1 {
		t.Errorf("counters = %+v, want one hit, one miss, one count entry", info)
	}
}

func TestAccessorClearCache(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	if _, err := a.Read("", nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if _, err := a.RowCount(""); err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}

	cleared := a.ClearCache()
	if cleared != 2 {
		t.Errorf("ClearCache = %d, want 2", cleared)
	}
	info := a.CacheInfo()
	if info.DataEntries != 0 || info.RowCountEntries != 0 || info.Hits != 0 || info.Misses != 0 {
		t.Errorf("cache not reset: %+v", info)
	}
}

func TestAccessorGetInfo(t *testing.T) {
	a := testAccessor(t, writeCSV(t, salesCSV))

	info, err := a.GetInfo("", 2, nil)
	if err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	if info.Name != "sales.csv" || info.TotalRows != 3 {
		t.Errorf("info = %+v", info)
	}
	if len(info.ColumnNames) != 3 || info.ColumnTypes["sales"] != "number" {
		t.Errorf("columns = %v, types = %v", info.ColumnNames, info.ColumnTypes)
	}
	// Header row plus two sample rows.
	if len(info.SampleRows) != 3 {
		t.Errorf("sample rows = %d, want 3", len(info.SampleRows))
	}
	stats, ok := info.ColumnStats["sales"]
	if !ok || stats.Min == nil || stats.Max == nil || stats.Mean == nil || stats.Median == nil {
		t.Fatalf("sales stats = %+v", stats)
	}
	if *stats.Min != 5 || *stats.Max != 20 || *stats.Median != 10 {
		t.Errorf("sales min/max/median = %v/%v/%v, want 5/20/10", *stats.Min, *stats.Max, *stats.Median)
	}
	region, ok := info.ColumnStats["region"]
	if !ok || region.UniqueValues == nil || *region.UniqueValues != 2 {
		t.Fatalf("region stats = %+v", region)
	}
	if len(region.TopValues) != 2 || region.TopValues[0].Value != "east" || region.TopValues[0].Count != 2 {
		t.Errorf("region top values = %+v, want east first with count 2", region.TopValues)
	}
}
