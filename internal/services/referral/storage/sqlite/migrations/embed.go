package migrations

import "embed"

// FS contains embedded SQLite migrations for referral storage.
//
//go:embed *.sql
var FS embed.FS
