// Package storage owns the cached tabular access engine: per-file
// accessors with LRU dataset caches, and the bounded registry that keeps
// accessors alive across tool calls.
//
// Locking is two-tier: the registry guards its own map, each accessor
// guards its own caches. Two different files never contend on a lock, and
// no lock is held across a decode except the single accessor's own.
package storage

import (
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tabserve/tabserve/internal/dataset"
	"github.com/tabserve/tabserve/internal/decode"
	"github.com/tabserve/tabserve/internal/query"
	"github.com/tabserve/tabserve/internal/taberr"
)

// parallelMinBytes gates parallel ingestion to files large enough for the
// fan-out to pay for itself.
const parallelMinBytes = 4 << 20

// sampleCap bounds the rows used for per-column statistics.
const sampleCap = 100

// AccessorOptions configures one FileAccessor.
type AccessorOptions struct {
	// MaxCacheEntries bounds the dataset cache. Zero means unbounded.
	MaxCacheEntries int
	// ParallelIngest enables fan-out decoding for large files.
	ParallelIngest bool
	// IngestWorkers caps the ingestion pool; decode.MaxWorkers is the hard cap.
	IngestWorkers int
}

// FileAccessor serves all reads for one canonical file path, resolving
// them against its dataset cache and row-count index. Safe for concurrent
// use; it is never shared across two different canonical paths.
type FileAccessor struct {
	path string
	opts AccessorOptions
	log  *slog.Logger

	mu     sync.Mutex
	cache  *cacheStore
	counts *rowCountIndex
	hits   uint64
	misses uint64
}

// newFileAccessor validates that the path exists and builds the accessor.
func newFileAccessor(path string, opts AccessorOptions, log *slog.Logger) (*FileAccessor, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, taberr.Wrap(taberr.FileNotFound, err, "file %q not found", path)
		}
		return nil, err
	}
	return &FileAccessor{
		path:   path,
		opts:   opts,
		log:    log.With("path", path),
		cache:  newCacheStore(opts.MaxCacheEntries),
		counts: newRowCountIndex(opts.MaxCacheEntries),
	}, nil
}

// Path returns the canonical file path this accessor serves.
func (a *FileAccessor) Path() string { return a.path }

func (a *FileAccessor) mtime() (time.Time, error) {
	fi, err := os.Stat(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, taberr.Wrap(taberr.FileNotFound, err, "file %q not found", a.path)
		}
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// resolve implements cache resolution for a column-scoped read: exact hit,
// derived hit from a valid full entry, or miss with decode. The returned
// dataset is always a defensive copy.
func (a *FileAccessor) resolve(sheet string, columns []string) (*dataset.Dataset, error) {
	mtime, err := a.mtime()
	if err != nil {
		return nil, err
	}
	key := dataset.SelectionKey(sheet, columns)

	a.mu.Lock()
	if ds, ok := a.cache.get(key, mtime); ok {
		a.hits++
		a.mu.Unlock()
		a.log.Debug("cache hit", "key", key)
		return ds.Clone(), nil
	}
	if len(columns) > 0 {
		fullKey := dataset.SelectionKey(sheet, nil)
		if full, ok := a.cache.get(fullKey, mtime); ok {
			sub, err := full.Select(dataset.NormalizeColumns(columns))
			if err == nil {
				a.cache.put(key, sub, mtime)
				a.hits++
				a.mu.Unlock()
				a.log.Debug("derived cache hit", "key", key, "from", fullKey)
				return sub.Clone(), nil
			}
			// Requested column absent from the full dataset: fall through so
			// the decoder reports it against the file itself.
		}
	}
	a.misses++
	a.mu.Unlock()
	a.log.Debug("cache miss", "key", key)

	// Decode outside the lock; nothing is committed on failure.
	ds, err := a.decodeFile(sheet, columns)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.cache.put(key, ds, mtime)
	a.mu.Unlock()
	return ds.Clone(), nil
}

func (a *FileAccessor) decodeFile(sheet string, columns []string) (*dataset.Dataset, error) {
	if a.opts.ParallelIngest {
		if fi, err := os.Stat(a.path); err == nil && fi.Size() >= parallelMinBytes {
			return decode.DecodeParallel(a.path, sheet, columns, a.opts.IngestWorkers)
		}
	}
	return decode.Decode(a.path, sheet, columns)
}

// Read materializes the sheet (optionally a column selection) in full.
// This is the only operation that can return the entire file.
func (a *FileAccessor) Read(sheet string, columns []string) (*dataset.Dataset, error) {
	return a.resolve(sheet, columns)
}

// Query runs the restricted aggregation pipeline and returns only the
// reduced result. Plans without group_by and aggregation are rejected by
// plan validation before any data is touched.
func (a *FileAccessor) Query(plan *query.Plan, sheet string, columns []string) (*query.Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	ds, err := a.resolve(sheet, columns)
	if err != nil {
		return nil, err
	}
	return query.Execute(ds, plan)
}

// ReadHead returns the first n rows, streaming where the format permits.
// Head and tail reads bypass the dataset cache.
func (a *FileAccessor) ReadHead(n int, sheet string, columns []string) (*dataset.Dataset, error) {
	if n <= 0 {
		n = 10
	}
	return decode.DecodeHead(a.path, sheet, dataset.NormalizeColumns(columns), n)
}

// ReadTail returns the last n rows. Formats without reverse seek decode
// fully before slicing.
func (a *FileAccessor) ReadTail(n int, sheet string, columns []string) (*dataset.Dataset, error) {
	if n <= 0 {
		n = 10
	}
	return decode.DecodeTail(a.path, sheet, dataset.NormalizeColumns(columns), n)
}

// RowCount returns the sheet's data row count via the row-count index,
// independent of the dataset cache.
func (a *FileAccessor) RowCount(sheet string) (int, error) {
	mtime, err := a.mtime()
	if err != nil {
		return 0, err
	}
	key := dataset.SelectionKey(sheet, nil)

	a.mu.Lock()
	if count, ok := a.counts.get(key, mtime); ok {
		a.hits++
		a.mu.Unlock()
		return count, nil
	}
	a.misses++
	a.mu.Unlock()

	count, err := decode.CountRows(a.path, sheet)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.counts.put(key, count, mtime)
	a.mu.Unlock()
	return count, nil
}

// Sheets lists the file's sheet identifiers.
func (a *FileAccessor) Sheets() ([]string, error) {
	return decode.ListSheets(a.path)
}

// ClearCache drops all cached entries and resets the counters.
func (a *FileAccessor) ClearCache() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	cleared := a.cache.len() + a.counts.len()
	a.cache.clear()
	a.counts.clear()
	a.hits = 0
	a.misses = 0
	a.log.Debug("cache cleared", "entries", cleared)
	return cleared
}

// CacheInfo reports hit/miss counters, entry counts, and the estimated
// memory footprint.
func (a *FileAccessor) CacheInfo() CacheInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return CacheInfo{
		DataEntries:     a.cache.len(),
		RowCountEntries: a.counts.len(),
		MaxEntries:      a.opts.MaxCacheEntries,
		MemoryBytes:     a.cache.bytes(),
		Hits:            a.hits,
		Misses:          a.misses,
	}
}

// Info is the structural summary returned by GetInfo: counts, type
// classification, a bounded sample, and lightweight per-column stats -
// never the full dataset.
type Info struct {
	Name        string                 `json:"name"`
	SizeBytes   int64                  `json:"size_bytes"`
	Sheets      []string               `json:"sheets"`
	TotalRows   int                    `json:"total_rows"`
	ColumnNames []string               `json:"column_names"`
	ColumnTypes map[string]string      `json:"column_types"`
	SampleRows  [][]any                `json:"sample_rows"`
	ColumnStats map[string]ColumnStats `json:"column_stats"`
}

// ColumnStats summarizes one column from a bounded sample. Numeric
// columns carry min/max/mean/median; other columns carry distinct
// counts, example values, and the most frequent values with counts.
type ColumnStats struct {
	Min          *float64     `json:"min,omitempty"`
	Max          *float64     `json:"max,omitempty"`
	Mean         *float64     `json:"mean,omitempty"`
	Median       *float64     `json:"median,omitempty"`
	UniqueValues *int         `json:"unique_values,omitempty"`
	Values       []any        `json:"values,omitempty"`
	TopValues    []ValueCount `json:"top_values,omitempty"`
}

// ValueCount pairs a categorical value with its sample frequency.
type ValueCount struct {
	Value any `json:"value"`
	Count int `json:"count"`
}

// GetInfo returns the structural summary of a sheet.
func (a *FileAccessor) GetInfo(sheet string, sampleRows int, columns []string) (*Info, error) {
	if sampleRows <= 0 {
		sampleRows = 10
	}
	ds, err := a.resolve(sheet, columns)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(a.path)
	if err != nil {
		return nil, taberr.Wrap(taberr.FileNotFound, err, "file %q not found", a.path)
	}
	sheets, err := decode.ListSheets(a.path)
	if err != nil {
		return nil, err
	}
	return &Info{
		Name:        fi.Name(),
		SizeBytes:   fi.Size(),
		Sheets:      sheets,
		TotalRows:   ds.NumRows(),
		ColumnNames: ds.Columns,
		ColumnTypes: ds.ColumnTypes(),
		SampleRows:  ds.Head(sampleRows).Matrix(),
		ColumnStats: columnStats(ds),
	}, nil
}

// columnStats computes per-column summaries over at most sampleCap rows.
func columnStats(ds *dataset.Dataset) map[string]ColumnStats {
	sample := ds.Rows
	if len(sample) > sampleCap {
		sample = sample[:sampleCap]
	}
	types := ds.ColumnTypes()
	stats := make(map[string]ColumnStats, len(ds.Columns))
	for i, col := range ds.Columns {
		if types[col] == "number" {
			stats[col] = numericStats(sample, i)
		} else {
			stats[col] = categoricalStats(sample, i)
		}
	}
	return stats
}

func numericStats(rows [][]dataset.Value, col int) ColumnStats {
	nums := make([]float64, 0, len(rows))
	for _, row := range rows {
		if f, ok := row[col].Float(); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return ColumnStats{}
	}
	minV, maxV := nums[0], nums[0]
	var sum float64
	for _, f := range nums {
		if f < minV {
			minV = f
		}
		if f > maxV {
			maxV = f
		}
		sum += f
	}
	mean := sum / float64(len(nums))
	sort.Float64s(nums)
	mid := len(nums) / 2
	median := nums[mid]
	if len(nums)%2 == 0 {
		median = (nums[mid-1] + nums[mid]) / 2
	}
	return ColumnStats{Min: &minV, Max: &maxV, Mean: &mean, Median: &median}
}

// topValueCap bounds the frequency table of a categorical column.
const topValueCap = 20

func categoricalStats(rows [][]dataset.Value, col int) ColumnStats {
	counts := map[string]int{}
	rendered := map[string]any{}
	var order []string
	for _, row := range rows {
		v := row[col]
		if v.IsNull() {
			continue
		}
		key := v.String()
		if _, ok := counts[key]; !ok {
			order = append(order, key)
			rendered[key] = v.Any()
		}
		counts[key]++
	}
	// Most frequent first; ties keep first-seen order.
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] > counts[order[b]]
	})
	var examples []any
	top := make([]ValueCount, 0, min(len(order), topValueCap))
	for i, key := range order {
		if i < 10 {
			examples = append(examples, rendered[key])
		}
		if i >= topValueCap {
			break
		}
		top = append(top, ValueCount{Value: rendered[key], Count: counts[key]})
	}
	unique := len(counts)
	return ColumnStats{UniqueValues: &unique, Values: examples, TopValues: top}
}
