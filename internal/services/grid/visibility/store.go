// Package visibility persists which grid columns a user has hidden.
//
// Visibility is presentation state: it is keyed per table and lives apart
// from the page cache and dataset reset keys, so resetting a grid's data
// never touches it and vice versa.
package visibility

import (
	"context"
	"maps"
	"strings"
	"sync"
)

// Columns maps a column field name to whether it is shown.
type Columns map[string]bool

// Clone returns a copy of c.
func (c Columns) Clone() Columns {
	if c == nil {
		return nil
	}
	return maps.Clone(c)
}

// Store persists column visibility per table key.
type Store interface {
	GetColumns(ctx context.Context, table string) (Columns, bool, error)
	PutColumns(ctx context.Context, table string, columns Columns) error
	DeleteColumns(ctx context.Context, table string) error
}

// MemoryStore keeps visibility in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]Columns
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]Columns)}
}

// GetColumns implements Store.
func (s *MemoryStore) GetColumns(_ context.Context, table string) (Columns, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols, ok := s.tables[strings.TrimSpace(table)]
	return cols.Clone(), ok, nil
}

// PutColumns implements Store.
func (s *MemoryStore) PutColumns(_ context.Context, table string, columns Columns) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[strings.TrimSpace(table)] = columns.Clone()
	return nil
}

// DeleteColumns implements Store.
func (s *MemoryStore) DeleteColumns(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, strings.TrimSpace(table))
	return nil
}
