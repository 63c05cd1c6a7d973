package domain

import (
	"fmt"
	"strings"
)

// Strategy selects how the controller turns a page change into fetches.
type Strategy int

const (
	// StrategyStrict fetches only the visible page.
	StrategyStrict Strategy = iota + 1
	// StrategyBlock fetches the aligned two-page block holding the visible
	// page and serves both pages from a rolling buffer.
	StrategyBlock
)

// ParseStrategy parses "strict" or "block".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return StrategyStrict, nil
	case "block", "prefetch":
		return StrategyBlock, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyStrict:
		return "strict"
	case StrategyBlock:
		return "block"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// BlockPages returns the aligned block holding page.
func BlockPages(page int) (first, second int) {
	first = page / 2 * 2
	return first, first + 1
}

// rollingBuffer holds the rows of one aligned block laid out contiguously
// from offset first*pageSize, so the visible window is a slice of it.
type rollingBuffer[R any] struct {
	first    int
	pageSize int
	rows     []R
	filled   [2]int
	present  [2]bool
}

func (b *rollingBuffer[R]) reset(first, pageSize int) {
	b.first = first
	b.pageSize = pageSize
	b.rows = make([]R, 2*pageSize)
	b.filled = [2]int{}
	b.present = [2]bool{}
}

func (b *rollingBuffer[R]) holds(first, pageSize int) bool {
	return b.rows != nil && b.first == first && b.pageSize == pageSize
}

func (b *rollingBuffer[R]) slot(page int) (int, bool) {
	i := page - b.first
	return i, i == 0 || i == 1
}

func (b *rollingBuffer[R]) fill(page int, rows []R) {
	i, ok := b.slot(page)
	if !ok || b.rows == nil {
		return
	}
	n := copy(b.rows[i*b.pageSize:(i+1)*b.pageSize], rows)
	b.filled[i] = n
	b.present[i] = true
}

// window returns the rows of page, sliced from the buffer at
// [page*pageSize - first*pageSize, +filled).
func (b *rollingBuffer[R]) window(page int) ([]R, bool) {
	i, ok := b.slot(page)
	if !ok || !b.present[i] {
		return nil, false
	}
	lo := i * b.pageSize
	return b.rows[lo : lo+b.filled[i]], true
}

func (b *rollingBuffer[R]) drop() {
	*b = rollingBuffer[R]{}
}
