// Tool endpoint handlers: thin adapters from JSON payloads to engine
// operations and back.

package server

import (
	"net/http"

	"github.com/tabserve/tabserve/internal/dataset"
	"github.com/tabserve/tabserve/internal/query"
	"github.com/tabserve/tabserve/internal/storage"
)

// FileRequest names the file scope shared by all read operations.
type FileRequest struct {
	Path    string   `json:"path" jsonschema:"description=Path of the tabular file (csv/tsv/xlsx/parquet)"`
	Sheet   string   `json:"sheet,omitempty" jsonschema:"description=Sheet name; defaults to the first sheet"`
	Columns []string `json:"columns,omitempty" jsonschema:"description=Optional column selection; empty reads all columns"`
}

// InfoRequest asks for the structural summary of a file.
type InfoRequest struct {
	FileRequest
	SampleRows int `json:"sample_rows,omitempty" jsonschema:"description=Number of sample rows to include (default 10)"`
}

// HeadTailRequest asks for the first or last N rows.
type HeadTailRequest struct {
	FileRequest
	N int `json:"n,omitempty" jsonschema:"description=Number of rows (default 10)"`
}

// FilterClause is one filter condition of a query.
type FilterClause struct {
	Column   string `json:"column" jsonschema:"description=Column to filter on"`
	Operator string `json:"operator,omitempty" jsonschema:"description=One of = != > < >= <= contains (default =)"`
	Value    any    `json:"value" jsonschema:"description=Comparison value"`
}

// QueryRequest describes an aggregation query. group_by and aggregation
// are mandatory: the query endpoint never returns raw rows.
type QueryRequest struct {
	FileRequest
	Filters         []FilterClause `json:"filters,omitempty" jsonschema:"description=Filter clauses applied before grouping"`
	GroupBy         string         `json:"group_by" jsonschema:"description=Grouping column (required)"`
	Aggregation     string         `json:"aggregation" jsonschema:"description=One of sum avg count min max median std var first last nunique (required)"`
	AggregateColumn string         `json:"aggregate_column,omitempty" jsonschema:"description=Column to aggregate; optional for count and nunique"`
	OrderBy         string         `json:"order_by,omitempty" jsonschema:"description=Output column to sort by"`
	Order           string         `json:"order,omitempty" jsonschema:"description=asc or desc (default asc)"`
	Limit           int            `json:"limit,omitempty" jsonschema:"description=Maximum number of groups returned (default 100)"`
}

// CountRequest asks for a sheet's row count.
type CountRequest struct {
	Path  string `json:"path" jsonschema:"description=Path of the tabular file"`
	Sheet string `json:"sheet,omitempty" jsonschema:"description=Sheet name; defaults to the first sheet"`
}

// SheetsRequest lists the sheets of a file.
type SheetsRequest struct {
	Path string `json:"path" jsonschema:"description=Path of the tabular file"`
}

// ClearRequest clears one accessor or, with an empty path, all of them.
type ClearRequest struct {
	Path string `json:"path,omitempty" jsonschema:"description=File to clear; empty clears every cached file"`
}

func (s *Server) accessorFor(path string) (*storage.FileAccessor, error) {
	canonical, err := s.resolvePath(path)
	if err != nil {
		return nil, err
	}
	return s.registry.Get(canonical)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var req InfoRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	acc, err := s.accessorFor(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	info, err := acc.GetInfo(req.Sheet, req.SampleRows, req.Columns)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	acc, err := s.accessorFor(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	ds, err := acc.Read(req.Sheet, req.Columns)
	if err != nil {
		respondError(w, err)
		return
	}
	respondDataset(w, ds)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	acc, err := s.accessorFor(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	plan := &query.Plan{
		GroupBy:   req.GroupBy,
		Agg:       query.Agg(req.Aggregation),
		AggColumn: req.AggregateColumn,
		OrderBy:   req.OrderBy,
		Desc:      req.Order == "desc",
		Limit:     s.clampLimit(req.Limit),
	}
	for _, f := range req.Filters {
		plan.Filters = append(plan.Filters, query.Filter{
			Column: f.Column,
			Op:     query.Op(f.Operator),
			Value:  valueFromJSON(f.Value),
		})
	}
	res, err := acc.Query(plan, req.Sheet, req.Columns)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, queryResponse(req, res))
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	s.handleHeadTail(w, r, (*storage.FileAccessor).ReadHead)
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	s.handleHeadTail(w, r, (*storage.FileAccessor).ReadTail)
}

func (s *Server) handleHeadTail(w http.ResponseWriter, r *http.Request,
	read func(*storage.FileAccessor, int, string, []string) (*dataset.Dataset, error)) {
	var req HeadTailRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	acc, err := s.accessorFor(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	ds, err := read(acc, req.N, req.Sheet, req.Columns)
	if err != nil {
		respondError(w, err)
		return
	}
	respondDataset(w, ds)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	var req CountRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	acc, err := s.accessorFor(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	count, err := acc.RowCount(req.Sheet)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rows": count})
}

func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	var req SheetsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	acc, err := s.accessorFor(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	sheets, err := acc.Sheets()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sheets": sheets})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Path == "" {
		s.registry.ClearAll()
		respondJSON(w, http.StatusOK, map[string]any{"cleared": "all"})
		return
	}
	canonical, err := s.resolvePath(req.Path)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.registry.Clear(canonical); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cleared": canonical})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"accessors":          stats.Accessors,
		"max_accessors":      stats.MaxAccessors,
		"hits":               stats.Hits,
		"misses":             stats.Misses,
		"hit_rate":           stats.HitRate(),
		"total_entries":      stats.TotalEntries,
		"total_memory_bytes": stats.TotalMemoryBytes,
		"details":            stats.Details,
	})
}

// respondDataset writes a row-matrix payload.
func respondDataset(w http.ResponseWriter, ds *dataset.Dataset) {
	respondJSON(w, http.StatusOK, map[string]any{
		"data":    ds.Matrix(),
		"rows":    ds.NumRows(),
		"columns": ds.NumCols(),
	})
}

// queryResponse renders the compact paired-arrays form for two-column
// results and the row matrix otherwise.
func queryResponse(req QueryRequest, res *query.Result) map[string]any {
	out := map[string]any{
		"rows":        len(res.Rows),
		"aggregation": req.Aggregation,
		"grouped_by":  req.GroupBy,
	}
	if len(res.Columns) == 2 {
		data := make([][2]dataset.Value, len(res.Rows))
		for i := range res.Rows {
			data[i] = [2]dataset.Value{res.Labels[i], res.Values[i]}
		}
		out["labels"] = res.Labels
		out["values"] = res.Values
		out["data"] = data
		return out
	}
	matrix := make([][]dataset.Value, 0, len(res.Rows)+1)
	header := make([]dataset.Value, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = dataset.StringValue(c)
	}
	matrix = append(matrix, header)
	matrix = append(matrix, res.Rows...)
	out["data"] = matrix
	return out
}

// valueFromJSON converts a decoded JSON scalar into a typed cell value.
func valueFromJSON(v any) dataset.Value {
	switch t := v.(type) {
	case nil:
		return dataset.NullValue()
	case bool:
		return dataset.BoolValue(t)
	case float64:
		if t == float64(int64(t)) {
			return dataset.IntValue(int64(t))
		}
		return dataset.FloatValue(t)
	case string:
		return dataset.StringValue(t)
	default:
		return dataset.NullValue()
	}
}
