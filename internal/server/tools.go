// Tool catalog: machine-readable descriptions of every endpoint so a
// caller can discover the surface without out-of-band documentation.

package server

import (
	"net/http"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

// ToolSpec describes one tool endpoint.
type ToolSpec struct {
	Name        string             `json:"name"`
	Method      string             `json:"method"`
	Path        string             `json:"path"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
}

var (
	toolsOnce sync.Once
	toolSpecs []ToolSpec
)

// toolCatalog reflects the request structs once and caches the result.
func toolCatalog() []ToolSpec {
	toolsOnce.Do(func() {
		toolSpecs = []ToolSpec{
			{
				Name:        "get_file_info",
				Method:      http.MethodPost,
				Path:        "/api/files/info",
				Description: "Structural summary of a tabular file: size, sheets, row count, column names, inferred types, per-column stats and sample rows.",
				InputSchema: schemaFor[InfoRequest](),
			},
			{
				Name:        "read_file",
				Method:      http.MethodPost,
				Path:        "/api/files/read",
				Description: "Full contents of a sheet, optionally restricted to named columns.",
				InputSchema: schemaFor[FileRequest](),
			},
			{
				Name:        "query_file",
				Method:      http.MethodPost,
				Path:        "/api/files/query",
				Description: "Filter, group and aggregate a sheet. Grouping and an aggregation are required; raw row dumps are not served here.",
				InputSchema: schemaFor[QueryRequest](),
			},
			{
				Name:        "head",
				Method:      http.MethodPost,
				Path:        "/api/files/head",
				Description: "First N rows of a sheet without populating the cache.",
				InputSchema: schemaFor[HeadTailRequest](),
			},
			{
				Name:        "tail",
				Method:      http.MethodPost,
				Path:        "/api/files/tail",
				Description: "Last N rows of a sheet without populating the cache.",
				InputSchema: schemaFor[HeadTailRequest](),
			},
			{
				Name:        "count_rows",
				Method:      http.MethodPost,
				Path:        "/api/files/count",
				Description: "Row count of a sheet, excluding the header.",
				InputSchema: schemaFor[CountRequest](),
			},
			{
				Name:        "list_sheets",
				Method:      http.MethodPost,
				Path:        "/api/files/sheets",
				Description: "Sheet names of a workbook. Single-table formats report one pseudo-sheet.",
				InputSchema: schemaFor[SheetsRequest](),
			},
			{
				Name:        "clear_cache",
				Method:      http.MethodPost,
				Path:        "/api/cache/clear",
				Description: "Drop cached datasets for one file, or for every file when no path is given.",
				InputSchema: schemaFor[ClearRequest](),
			},
			{
				Name:        "cache_stats",
				Method:      http.MethodGet,
				Path:        "/api/cache/stats",
				Description: "Registry-wide cache statistics: accessor count, hit rate, entry and memory totals.",
			},
		}
	})
	return toolSpecs
}

// schemaFor reflects a request struct with inline properties (no $ref).
func schemaFor[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return r.ReflectFromType(reflect.TypeFor[T]())
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"tools": toolCatalog()})
}
