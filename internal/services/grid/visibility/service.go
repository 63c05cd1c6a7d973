package visibility

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/pricedesk/internal/platform/errors"
)

var (
	// ErrTableRequired indicates a service was built without a table key.
	ErrTableRequired = errors.New("visibility table key is required")
	// ErrStoreRequired indicates a service was built without a store.
	ErrStoreRequired = errors.New("visibility store is required")
	// ErrUnknownColumn rejects a field the table does not declare.
	ErrUnknownColumn = errors.New("unknown column")
)

// Service tracks column visibility for one table. State is loaded when the
// service is created and saved on every change.
type Service struct {
	store  Store
	table  string
	fields []string
	logf   func(string, ...any)

	mu      sync.Mutex
	columns Columns
}

// NewService loads the saved visibility of table. Fields declare the
// table's columns in display order; saved entries for undeclared fields are
// dropped and newly declared fields start visible.
func NewService(ctx context.Context, store Store, table string, fields []string, logf func(string, ...any)) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, ErrTableRequired
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	saved, ok, err := store.GetColumns(ctx, table)
	if err != nil {
		return nil, storeError("load", table, err)
	}
	columns := allVisible(fields)
	if ok {
		for field := range columns {
			if visible, found := saved[field]; found {
				columns[field] = visible
			}
		}
		logf("grid columns %s loaded: %d hidden", table, hiddenCount(columns))
	}
	return &Service{
		store:   store,
		table:   table,
		fields:  slices.Clone(fields),
		logf:    logf,
		columns: columns,
	}, nil
}

// Table returns the table key.
func (s *Service) Table() string { return s.table }

// Columns returns a copy of the current visibility.
func (s *Service) Columns() Columns {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns.Clone()
}

// Visible returns the shown fields in display order.
func (s *Service) Visible() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.fields))
	for _, field := range s.fields {
		if s.columns[field] {
			out = append(out, field)
		}
	}
	return out
}

// IsVisible reports whether field is shown. Unknown fields are hidden.
func (s *Service) IsVisible(field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns[field]
}

// SetVisible shows or hides field and saves the change.
func (s *Service) SetVisible(ctx context.Context, field string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.columns[field]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	if current == visible {
		return nil
	}
	next := s.columns.Clone()
	next[field] = visible
	if err := s.store.PutColumns(ctx, s.table, next); err != nil {
		return storeError("save", s.table, err)
	}
	s.columns = next
	return nil
}

// Reset shows every column again and forgets the saved state.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteColumns(ctx, s.table); err != nil {
		return storeError("reset", s.table, err)
	}
	s.columns = allVisible(s.fields)
	s.logf("grid columns %s reset", s.table)
	return nil
}

func allVisible(fields []string) Columns {
	out := make(Columns, len(fields))
	for _, field := range fields {
		out[field] = true
	}
	return out
}

func hiddenCount(columns Columns) int {
	n := 0
	for _, visible := range columns {
		if !visible {
			n++
		}
	}
	return n
}

func storeError(op, table string, err error) error {
	return apperrors.Wrap(apperrors.CodeGridVisibilityStore, fmt.Sprintf("%s columns %s: %v", op, table, err), err)
}
