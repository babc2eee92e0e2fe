package migrations

import "embed"

// FS contains embedded SQLite migrations for world query storage.
//
//go:embed *.sql
var FS embed.FS
