// Observable cache statistics for accessors and the registry.

package storage

// CacheInfo reports one accessor's cache state.
type CacheInfo struct {
	DataEntries     int    `json:"data_entries"`
	RowCountEntries int    `json:"row_count_entries"`
	MaxEntries      int    `json:"max_entries"`
	MemoryBytes     int64  `json:"memory_bytes"`
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
}

// TotalEntries is the combined entry count of both per-file stores.
func (c CacheInfo) TotalEntries() int {
	return c.DataEntries + c.RowCountEntries
}

// HitRate returns the hit percentage of all requests, 0 when idle.
func (c CacheInfo) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total) * 100
}

// AccessorStats is the per-accessor detail row of RegistryStats.
type AccessorStats struct {
	Path        string  `json:"path"`
	IdleSeconds int64   `json:"idle_seconds"`
	Entries     int     `json:"entries"`
	MemoryBytes int64   `json:"memory_bytes"`
	HitRate     float64 `json:"hit_rate"`
}

// RegistryStats aggregates cache statistics across all live accessors
// plus the registry's own hit/miss counts (hit = accessor reused, miss =
// accessor constructed).
type RegistryStats struct {
	Accessors        int             `json:"accessors"`
	MaxAccessors     int             `json:"max_accessors"`
	Hits             uint64          `json:"hits"`
	Misses           uint64          `json:"misses"`
	TotalEntries     int             `json:"total_entries"`
	TotalMemoryBytes int64           `json:"total_memory_bytes"`
	Details          []AccessorStats `json:"details"`
}

// HitRate returns the registry-level hit percentage, 0 when idle.
func (s RegistryStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
