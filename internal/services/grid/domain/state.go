package domain

import (
	"slices"

	"github.com/louisbranch/pricedesk/internal/platform/pagination"
)

// UnknownTotal is the total reported before the first successful fetch.
const UnknownTotal = -1

// WindowState is a read-only snapshot of a controller's visible window.
type WindowState[R any] struct {
	Page     int
	PageSize int
	// Total is the size of the whole result set, or UnknownTotal.
	Total   int
	Rows    []R
	Loading bool
	// Err holds the *FetchFailure of the last visible fetch, if it failed.
	Err error
	// Revision counts fetch outcomes applied to the window.
	Revision uint64

	Filter  Filter
	Sort    Sort
	Dataset ResetKey
}

// PageCount returns the number of pages, or -1 while Total is unknown.
func (s WindowState[R]) PageCount() int {
	return pagination.PageCount(s.Total, s.PageSize)
}

// HasNext reports whether a page after the current one exists. An unknown
// total is treated as open-ended.
func (s WindowState[R]) HasNext() bool {
	if s.Total < 0 {
		return true
	}
	return pagination.Offset(s.Page+1, s.PageSize) < s.Total
}

// FirstRow returns the zero-based index of the first visible row.
func (s WindowState[R]) FirstRow() int {
	return pagination.Offset(s.Page, s.PageSize)
}

func (s WindowState[R]) clone() WindowState[R] {
	s.Rows = slices.Clone(s.Rows)
	if s.Rows == nil {
		s.Rows = []R{}
	}
	s.Filter = s.Filter.Clone()
	s.Sort = s.Sort.Clone()
	return s
}
