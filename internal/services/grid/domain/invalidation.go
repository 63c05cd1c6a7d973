package domain

import "sync"

// Invalidator remembers the dataset identity a controller is showing and
// reports when a newly observed key differs from it by value.
type Invalidator struct {
	mu      sync.Mutex
	current ResetKey
}

// NewInvalidator starts tracking from initial.
func NewInvalidator(initial ResetKey) *Invalidator {
	return &Invalidator{current: initial}
}

// Observe records key and reports whether it changed.
func (i *Invalidator) Observe(key ResetKey) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if key == i.current {
		return false
	}
	i.current = key
	return true
}

// Current returns the last observed key.
func (i *Invalidator) Current() ResetKey {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}
