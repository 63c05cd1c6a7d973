package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/pricedesk/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/pricedesk/internal/services/grid/storage/sqlite/migrations"
	"github.com/louisbranch/pricedesk/internal/services/grid/visibility"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed visibility.Store.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens and migrates a grid SQLite store.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, clock: time.Now}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetColumns loads the saved visibility of table.
func (s *Store) GetColumns(ctx context.Context, table string) (visibility.Columns, bool, error) {
	if s == nil || s.sqlDB == nil {
		return nil, false, fmt.Errorf("storage is not configured")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, false, fmt.Errorf("table key is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT field, visible FROM grid_columns WHERE table_key = ?`,
		table,
	)
	if err != nil {
		return nil, false, fmt.Errorf("get columns: %w", err)
	}
	defer rows.Close()

	columns := visibility.Columns{}
	for rows.Next() {
		var field string
		var visible int64
		if err := rows.Scan(&field, &visible); err != nil {
			return nil, false, fmt.Errorf("scan column: %w", err)
		}
		columns[field] = visible != 0
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, false, nil
	}
	return columns, true, nil
}

// PutColumns replaces the saved visibility of table.
func (s *Store) PutColumns(ctx context.Context, table string, columns visibility.Columns) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return fmt.Errorf("table key is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put columns: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM grid_columns WHERE table_key = ?`, table); err != nil {
		return fmt.Errorf("clear columns: %w", err)
	}
	updatedAt := s.clock().UTC().UnixMilli()
	for field, visible := range columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grid_columns (table_key, field, visible, updated_at) VALUES (?, ?, ?, ?)`,
			table, field, boolToInt(visible), updatedAt,
		); err != nil {
			return fmt.Errorf("put column %s: %w", field, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put columns: %w", err)
	}
	return nil
}

// DeleteColumns removes the saved visibility of table.
func (s *Store) DeleteColumns(ctx context.Context, table string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return fmt.Errorf("table key is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM grid_columns WHERE table_key = ?`, table); err != nil {
		return fmt.Errorf("delete columns: %w", err)
	}
	return nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

var _ visibility.Store = (*Store)(nil)
