package migrations

import "embed"

// FS contains embedded SQLite migrations for grid storage.
//
//go:embed *.sql
var FS embed.FS
