// Package server exposes the tabular engine to tool callers over
// JSON-over-HTTP. The engine itself never formats wire payloads; this
// package is the response-formatting collaborator.
package server

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tabserve/tabserve/internal/config"
	"github.com/tabserve/tabserve/internal/server/ratelimit"
	"github.com/tabserve/tabserve/internal/storage"
	"github.com/tabserve/tabserve/internal/taberr"
)

// Server wires the accessor registry to the HTTP tool surface.
type Server struct {
	registry *storage.AccessorRegistry
	cfg      config.Config
	log      *slog.Logger
	limiter  *ratelimit.Limiter
}

// New creates a Server around an existing registry.
func New(registry *storage.AccessorRegistry, cfg config.Config, log *slog.Logger) *Server {
	return &Server{
		registry: registry,
		cfg:      cfg,
		log:      log,
		limiter:  ratelimit.NewLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst),
	}
}

// Close releases server resources.
func (s *Server) Close() {
	s.limiter.Close()
}

// Router builds the HTTP handler with all tool endpoints and middleware.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/tools", s.handleTools)

	mux.HandleFunc("POST /api/files/info", s.handleInfo)
	mux.HandleFunc("POST /api/files/read", s.handleRead)
	mux.HandleFunc("POST /api/files/query", s.handleQuery)
	mux.HandleFunc("POST /api/files/head", s.handleHead)
	mux.HandleFunc("POST /api/files/tail", s.handleTail)
	mux.HandleFunc("POST /api/files/count", s.handleCount)
	mux.HandleFunc("POST /api/files/sheets", s.handleSheets)

	mux.HandleFunc("POST /api/cache/clear", s.handleCacheClear)
	mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)

	return s.withRequestID(s.withLogging(s.withRateLimit(mux)))
}

// resolvePath canonicalizes the caller's path and enforces the configured
// data roots.
func (s *Server) resolvePath(path string) (string, error) {
	if path == "" {
		return "", errBadRequest("path is required")
	}
	canonical, err := storage.CanonicalPath(path)
	if err != nil {
		return "", err
	}
	if len(s.cfg.DataRoots) == 0 {
		return canonical, nil
	}
	for _, root := range s.cfg.DataRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if canonical == abs || strings.HasPrefix(canonical, abs+string(filepath.Separator)) {
			return canonical, nil
		}
	}
	return "", errForbidden("path %q is outside the configured data roots", path)
}

// clampLimit applies the configured default and cap to a caller limit.
func (s *Server) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.Query.DefaultLimit
	}
	if s.cfg.Query.MaxLimit > 0 && limit > s.cfg.Query.MaxLimit {
		limit = s.cfg.Query.MaxLimit
	}
	return limit
}

// statusForError maps the engine error taxonomy to HTTP statuses.
func statusForError(err error) (int, string) {
	if kind, ok := taberr.KindOf(err); ok {
		switch kind {
		case taberr.FileNotFound:
			return http.StatusNotFound, string(kind)
		case taberr.UnsupportedFormat:
			return http.StatusUnsupportedMediaType, string(kind)
		case taberr.ColumnNotFound, taberr.AggregationError, taberr.FilterError:
			return http.StatusBadRequest, string(kind)
		case taberr.CacheError:
			return http.StatusInternalServerError, string(kind)
		}
	}
	var se *serverError
	if asServerError(err, &se) {
		return se.status, se.code
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
