// Bounded registry of live FileAccessor instances, keyed by canonical
// path, evicting by idle time and capacity.

package storage

import (
	"container/list"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RegistryOptions configures an AccessorRegistry.
type RegistryOptions struct {
	// MaxAccessors bounds live accessors (and thus open-file exposure).
	MaxAccessors int
	// IdleTimeout evicts accessors unused for longer than this on the next
	// registry access.
	IdleTimeout time.Duration
	// Accessor configures every accessor the registry constructs.
	Accessor AccessorOptions
}

// DefaultRegistryOptions mirrors the engine defaults: a handful of live
// files, five-minute idle eviction, ten cached selections per file.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		MaxAccessors: 5,
		IdleTimeout:  5 * time.Minute,
		Accessor:     AccessorOptions{MaxCacheEntries: 10},
	}
}

type registryEntry struct {
	path     string
	accessor *FileAccessor
	lastUsed time.Time
	// refreshed marks when the accessor was created or last reused; a file
	// mtime beyond it invalidates the whole accessor.
	refreshed time.Time
}

// AccessorRegistry bounds the live FileAccessor instances for a process.
// It is an explicit, constructible service: tests run isolated registries
// and the daemon wires a single instance at startup.
type AccessorRegistry struct {
	opts RegistryOptions
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	ll      *list.List // front = most recently used
	entries map[string]*list.Element
	hits    uint64
	misses  uint64
}

// NewRegistry creates a registry with the given bounds.
func NewRegistry(opts RegistryOptions, log *slog.Logger) *AccessorRegistry {
	if log == nil {
		log = slog.Default()
	}
	r := &AccessorRegistry{
		opts:    opts,
		log:     log,
		now:     time.Now,
		ll:      list.New(),
		entries: make(map[string]*list.Element),
	}
	r.log.Info("accessor registry initialized",
		"max_accessors", opts.MaxAccessors, "idle_timeout", opts.IdleTimeout)
	return r
}

// CanonicalPath resolves a caller-supplied path to the absolute,
// symlink-free form used as the registry key.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	// The file may not exist yet at canonicalization time; accessor
	// construction performs the existence check.
	return abs, nil
}

// Get returns the live accessor for the path, constructing one on demand.
// A live accessor is reused only when the file has not been modified since
// it was last refreshed; otherwise it is discarded and rebuilt so stale
// caches never outlive a changed file.
func (r *AccessorRegistry) Get(path string) (*FileAccessor, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return nil, err
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.entries[canonical]; ok {
		e := el.Value.(*registryEntry)
		if fi, err := os.Stat(canonical); err == nil && fi.ModTime().After(e.refreshed) {
			r.log.Info("file changed, rebuilding accessor", "path", canonical)
			r.removeLocked(el)
		} else {
			e.lastUsed = now
			e.refreshed = now
			r.ll.MoveToFront(el)
			r.hits++
			return e.accessor, nil
		}
	}
	r.misses++

	r.evictLocked(now)

	accessor, err := newFileAccessor(canonical, r.opts.Accessor, r.log)
	if err != nil {
		return nil, err
	}
	el := r.ll.PushFront(&registryEntry{
		path:      canonical,
		accessor:  accessor,
		lastUsed:  now,
		refreshed: now,
	})
	r.entries[canonical] = el
	r.log.Info("accessor created", "path", canonical, "live", r.ll.Len())
	return accessor, nil
}

// evictLocked removes idle accessors, then trims by capacity so the
// insert that follows keeps the registry within MaxAccessors.
func (r *AccessorRegistry) evictLocked(now time.Time) {
	if r.opts.IdleTimeout > 0 {
		for el := r.ll.Back(); el != nil; {
			prev := el.Prev()
			e := el.Value.(*registryEntry)
			if now.Sub(e.lastUsed) > r.opts.IdleTimeout {
				r.log.Info("evicting idle accessor", "path", e.path, "idle", now.Sub(e.lastUsed))
				r.removeLocked(el)
			}
			el = prev
		}
	}
	for r.opts.MaxAccessors > 0 && r.ll.Len() >= r.opts.MaxAccessors {
		back := r.ll.Back()
		r.log.Info("evicting accessor at capacity", "path", back.Value.(*registryEntry).path)
		r.removeLocked(back)
	}
}

func (r *AccessorRegistry) removeLocked(el *list.Element) {
	e := el.Value.(*registryEntry)
	r.ll.Remove(el)
	delete(r.entries, e.path)
	e.accessor.ClearCache()
}

// Clear removes the accessor for one path. It is not an error if none is
// live.
func (r *AccessorRegistry) Clear(path string) error {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.entries[canonical]; ok {
		r.removeLocked(el)
		r.log.Info("accessor cleared", "path", canonical)
	}
	return nil
}

// ClearAll removes every accessor and resets the registry counters.
func (r *AccessorRegistry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.ll.Len()
	for el := r.ll.Front(); el != nil; el = el.Next() {
		el.Value.(*registryEntry).accessor.ClearCache()
	}
	r.ll.Init()
	r.entries = make(map[string]*list.Element)
	r.hits = 0
	r.misses = 0
	r.log.Info("registry cleared", "accessors", n)
}

// Len returns the number of live accessors.
func (r *AccessorRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ll.Len()
}

// Stats aggregates registry-level hit/miss counts with each live
// accessor's cache info.
func (r *AccessorRegistry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	stats := RegistryStats{
		Accessors:    r.ll.Len(),
		MaxAccessors: r.opts.MaxAccessors,
		Hits:         r.hits,
		Misses:       r.misses,
		Details:      make([]AccessorStats, 0, r.ll.Len()),
	}
	for el := r.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*registryEntry)
		info := e.accessor.CacheInfo()
		stats.TotalEntries += info.TotalEntries()
		stats.TotalMemoryBytes += info.MemoryBytes
		stats.Details = append(stats.Details, AccessorStats{
			Path:        e.path,
			IdleSeconds: int64(now.Sub(e.lastUsed).Seconds()),
			Entries:     info.TotalEntries(),
			MemoryBytes: info.MemoryBytes,
			HitRate:     info.HitRate(),
		})
	}
	return stats
}
