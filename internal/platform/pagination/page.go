// Package pagination holds offset paging arithmetic and page size policy.
package pagination

import "slices"

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 100

// DefaultPageSizes are the page sizes a grid accepts by default.
var DefaultPageSizes = []int{20, 50, 100, 200, 500}

// PageSizeConfig restricts page sizes to a fixed set.
type PageSizeConfig struct {
	Default int
	Allowed []int
}

// Normalize drops non-positive and duplicate sizes, sorts the rest, and
// makes sure Default is one of them.
func (cfg PageSizeConfig) Normalize() PageSizeConfig {
	allowed := make([]int, 0, len(cfg.Allowed))
	for _, size := range cfg.Allowed {
		if size > 0 {
			allowed = append(allowed, size)
		}
	}
	if len(allowed) == 0 {
		allowed = append(allowed, DefaultPageSizes...)
	}
	slices.Sort(allowed)
	allowed = slices.Compact(allowed)

	def := cfg.Default
	if def <= 0 {
		def = DefaultPageSize
	}
	if !slices.Contains(allowed, def) {
		def = allowed[0]
	}
	return PageSizeConfig{Default: def, Allowed: allowed}
}

// Allows reports whether size is in the allowed set.
func (cfg PageSizeConfig) Allows(size int) bool {
	return slices.Contains(cfg.Allowed, size)
}

// Offset returns the index of the first row on page.
func Offset(page, pageSize int) int {
	if page <= 0 || pageSize <= 0 {
		return 0
	}
	return page * pageSize
}

// PageCount returns the number of pages needed for total rows, or -1 when
// total is unknown.
func PageCount(total, pageSize int) int {
	if total < 0 {
		return -1
	}
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
