// Cache key normalization for sheet + column selections.

package dataset

import (
	"sort"
	"strings"
)

// DefaultSheet is the pseudo-sheet used when the caller does not name one.
const DefaultSheet = "default"

// SelectionKey builds the normalized cache key for a sheet and column
// selection. Set-equal selections (any order, with duplicates) normalize
// to the same key; an empty selection means the full sheet.
func SelectionKey(sheet string, columns []string) string {
	if sheet == "" {
		sheet = DefaultSheet
	}
	if len(columns) == 0 {
		return sheet + ":full"
	}
	return sheet + ":cols:" + strings.Join(NormalizeColumns(columns), ",")
}

// NormalizeColumns returns the sorted, de-duplicated column selection.
func NormalizeColumns(columns []string) []string {
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ParseColumns splits a comma-separated column selection into names,
// trimming whitespace and dropping empty items. Callers may also pass
// explicit lists; this helper exists for the string form.
func ParseColumns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
