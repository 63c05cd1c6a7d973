// Package sqlite persists grid column visibility in SQLite.
package sqlite
