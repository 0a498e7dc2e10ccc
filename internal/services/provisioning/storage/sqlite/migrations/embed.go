package migrations

import "embed"

// FS contains embedded SQLite migrations for provisioning storage.
//
//go:embed *.sql
var FS embed.FS
