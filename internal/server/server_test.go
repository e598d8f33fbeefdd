package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tabserve/tabserve/internal/config"
	"github.com/tabserve/tabserve/internal/storage"
)

func testServer(t *testing.T, mutate func(*config.Config)) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")
	content := "region,sales,rep\neast,5,ann\nwest,20,bob\neast,10,ann\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg := config.Default()
	cfg.DataRoots = []string{dir}
	cfg.RateLimit.RequestsPerMin = 0 // not under test unless enabled explicitly
	if mutate != nil {
		mutate(&cfg)
	}
	registry := storage.NewRegistry(storage.RegistryOptions{
		MaxAccessors: cfg.Cache.MaxAccessors,
		IdleTimeout:  cfg.Cache.IdleTimeout,
		Accessor:     storage.AccessorOptions{MaxCacheEntries: cfg.Cache.MaxEntries},
	}, slog.Default())
	srv := New(registry, cfg, slog.Default())
	t.Cleanup(srv.Close)
	return srv, path
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, nil)
	w := doJSON(t, srv.Router(), http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decodeJSON(t, w)["status"]; got != "ok" {
		t.Errorf("status field = %v", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestToolCatalog(t *testing.T) {
	srv, _ := testServer(t, nil)
	w := doJSON(t, srv.Router(), http.MethodGet, "/api/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	tools, ok := decodeJSON(t, w)["tools"].([]any)
	if !ok || len(tools) != 9 {
		t.Fatalf("tools = %v", tools)
	}
	first := tools[0].(map[string]any)
	if first["name"] != "get_file_info" || first["input_schema"] == nil {
		t.Errorf("first tool = %v", first)
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv, path := testServer(t, nil)
	router := srv.Router()

	t.Run("aggregates", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/query", map[string]any{
			"path":             path,
			"group_by":         "region",
			"aggregation":      "sum",
			"aggregate_column": "sales",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		out := decodeJSON(t, w)
		if out["rows"] != float64(2) || out["aggregation"] != "sum" || out["grouped_by"] != "region" {
			t.Errorf("response = %v", out)
		}
		labels := out["labels"].([]any)
		values := out["values"].([]any)
		want := map[string]float64{"east": 15, "west": 20}
		for i, l := range labels {
			if values[i].(float64) != want[l.(string)] {
				t.Errorf("sum(%v) = %v, want %v", l, values[i], want[l.(string)])
			}
		}
	})

	t.Run("missing aggregation is rejected", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/query", map[string]any{
			"path": path,
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		out := decodeJSON(t, w)
		errObj := out["error"].(map[string]any)
		if errObj["code"] != "AGGREGATION_ERROR" {
			t.Errorf("error = %v", errObj)
		}
	})

	t.Run("filters apply", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/query", map[string]any{
			"path":             path,
			"filters":          []map[string]any{{"column": "sales", "operator": ">", "value": 5}},
			"group_by":         "region",
			"aggregation":      "count",
			"aggregate_column": "",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if got := decodeJSON(t, w)["rows"]; got != float64(2) {
			t.Errorf("rows = %v, want 2 groups", got)
		}
	})
}

func TestReadEndpoints(t *testing.T) {
	srv, path := testServer(t, nil)
	router := srv.Router()

	t.Run("read", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/read", map[string]any{"path": path})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		out := decodeJSON(t, w)
		if out["rows"] != float64(3) || out["columns"] != float64(3) {
			t.Errorf("response = %v", out)
		}
		data := out["data"].([]any)
		if len(data) != 4 { // header plus rows
			t.Errorf("data rows = %d", len(data))
		}
	})

	t.Run("head", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/head", map[string]any{"path": path, "n": 1})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if got := decodeJSON(t, w)["rows"]; got != float64(1) {
			t.Errorf("rows = %v, want 1", got)
		}
	})

	t.Run("tail", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/tail", map[string]any{"path": path, "n": 2})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		out := decodeJSON(t, w)
		data := out["data"].([]any)
		last := data[len(data)-1].([]any)
		if last[1] != float64(10) {
			t.Errorf("last row = %v", last)
		}
	})

	t.Run("count", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/count", map[string]any{"path": path})
		if got := decodeJSON(t, w)["rows"]; got != float64(3) {
			t.Errorf("rows = %v, want 3", got)
		}
	})

	t.Run("sheets", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/sheets", map[string]any{"path": path})
		sheets := decodeJSON(t, w)["sheets"].([]any)
		if len(sheets) != 1 || sheets[0] != "default" {
			t.Errorf("sheets = %v", sheets)
		}
	})

	t.Run("info", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/files/info", map[string]any{"path": path})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		out := decodeJSON(t, w)
		if out["name"] != "sales.csv" || out["total_rows"] != float64(3) {
			t.Errorf("info = %v", out)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	srv, path := testServer(t, nil)
	router := srv.Router()
	dir := filepath.Dir(path)

	// The unsupported-format case needs the file to exist so format
	// detection is what fails, not the stat.
	if err := os.WriteFile(path+".txt", []byte("x"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	tests := []struct {
		name   string
		target string
		body   map[string]any
		status int
		code   string
	}{
		{"missing file", "/api/files/read",
			map[string]any{"path": filepath.Join(dir, "absent.csv")}, http.StatusNotFound, "FILE_NOT_FOUND"},
		{"unsupported format", "/api/files/read",
			map[string]any{"path": path + ".txt"}, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"},
		{"unknown column", "/api/files/read",
			map[string]any{"path": path, "columns": []string{"ghost"}}, http.StatusBadRequest, "COLUMN_NOT_FOUND"},
		{"empty path", "/api/files/read",
			map[string]any{"path": ""}, http.StatusBadRequest, "BAD_REQUEST"},
		{"outside data roots", "/api/files/read",
			map[string]any{"path": "/etc/passwd.csv"}, http.StatusForbidden, "FORBIDDEN"},
		{"unknown body field", "/api/files/read",
			map[string]any{"path": path, "bogus": 1}, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, tt.target, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			errObj := decodeJSON(t, w)["error"].(map[string]any)
			if errObj["code"] != tt.code {
				t.Errorf("code = %v, want %s", errObj["code"], tt.code)
			}
		})
	}
}

func TestCacheEndpoints(t *testing.T) {
	srv, path := testServer(t, nil)
	router := srv.Router()

	// Populate.
	if w := doJSON(t, router, http.MethodPost, "/api/files/read", map[string]any{"path": path}); w.Code != http.StatusOK {
		t.Fatalf("read status = %d", w.Code)
	}

	t.Run("stats", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/cache/stats", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		out := decodeJSON(t, w)
		if out["accessors"] != float64(1) || out["total_entries"] != float64(1) {
			t.Errorf("stats = %v", out)
		}
	})

	t.Run("clear one path", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/cache/clear", map[string]any{"path": path})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		stats := doJSON(t, router, http.MethodGet, "/api/cache/stats", nil)
		if got := decodeJSON(t, stats)["accessors"]; got != float64(0) {
			t.Errorf("accessors after clear = %v", got)
		}
	})

	t.Run("clear all", func(t *testing.T) {
		if w := doJSON(t, router, http.MethodPost, "/api/files/read", map[string]any{"path": path}); w.Code != http.StatusOK {
			t.Fatalf("read status = %d", w.Code)
		}
		w := doJSON(t, router, http.MethodPost, "/api/cache/clear", map[string]any{})
		if got := decodeJSON(t, w)["cleared"]; got != "all" {
			t.Errorf("cleared = %v", got)
		}
	})
}

func TestRateLimiting(t *testing.T) {
	srv, _ := testServer(t, func(c *config.Config) {
		c.RateLimit.RequestsPerMin = 60
		c.RateLimit.Burst = 2
	})
	router := srv.Router()

	for i := range 2 {
		w := doJSON(t, router, http.MethodGet, "/api/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	errObj := decodeJSON(t, w)["error"].(map[string]any)
	if errObj["code"] != "RATE_LIMITED" {
		t.Errorf("code = %v", errObj["code"])
	}
}
